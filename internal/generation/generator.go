package generation

import "context"

// Request describes one piece of product content to generate.
type Request struct {
	// SKU identifies the product the content belongs to.
	SKU string `json:"sku"`

	// Field names the catalog field being filled (e.g. "description", "title").
	Field string `json:"field"`

	// Prompt is the fully constructed prompt text. Prompt construction is the
	// caller's responsibility; this package only executes it.
	Prompt string `json:"prompt"`

	// SourceURL optionally records where source material was scraped from.
	SourceURL string `json:"source_url,omitempty"`
}

// Result is the generated content for a single request.
type Result struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// Generator defines the interface for generating product content from a
// prompt. It serves as the boundary between the execution core and external
// AI/LLM services, so the core never depends on a concrete provider.
type Generator interface {
	// Generate produces content for the given request. Implementations must
	// classify failures using the sentinel errors in this package so callers
	// can decide whether a retry is worthwhile.
	Generate(ctx context.Context, req Request) (*Result, error)
}
