// Package generation defines the interface and error taxonomy for generating
// product content with an external language model. Concrete providers live
// under internal/platform.
package generation
