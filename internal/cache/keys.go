package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DeriveKey produces a deterministic cache key from the logical content of a
// request, so two functionally identical requests collapse to one cache slot
// regardless of call order. The payload is normalized through a JSON
// round-trip, which sorts object keys, before hashing.
func DeriveKey(kind string, payload any) (string, error) {
	normalized, err := normalizePayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to normalize payload for cache key: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(normalized)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// normalizePayload returns a canonical JSON encoding of the payload.
// Raw JSON input is decoded and re-encoded so that key order and
// insignificant whitespace do not change the derived key.
func normalizePayload(payload any) ([]byte, error) {
	var raw []byte
	switch p := payload.(type) {
	case nil:
		return []byte("null"), nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		encoded, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return json.Marshal(decoded)
}
