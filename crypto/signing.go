package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// KV is a single key/value pair in an insertion-ordered request payload.
// Signing correctness depends on serializing payloads in the exact order
// fields were inserted, which a plain map[string]any cannot guarantee.
type KV struct {
	Key   string
	Value interface{}
}

// OrderedPayload is an insertion-ordered request body. Callers append
// fields in the order the broker's signature expects; CompactJSON and
// Sign both honor that order.
type OrderedPayload []KV

// Set appends a field to the payload, preserving call order.
func (p *OrderedPayload) Set(key string, value interface{}) {
	*p = append(*p, KV{Key: key, Value: value})
}

// CompactJSON renders the payload as whitespace-free JSON with keys in
// insertion order, e.g. {"symbol":"AKBNK","direction":"BUY",...}.
func (p OrderedPayload) CompactJSON() (string, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, kv := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		keyJSON, err := json.Marshal(kv.Key)
		if err != nil {
			return "", err
		}
		valJSON, err := json.Marshal(kv.Value)
		if err != nil {
			return "", err
		}
		b.Write(keyJSON)
		b.WriteByte(':')
		b.Write(valJSON)
	}
	b.WriteByte('}')
	return b.String(), nil
}

// Sign computes the broker's integrity checker:
// SHA256(apiKey ‖ hostname ‖ endpoint ‖ compactJSON(payload)).
// An empty payload contributes an empty string, per spec.
func Sign(apiKey, hostname, endpoint string, payload OrderedPayload) (string, error) {
	body := ""
	if len(payload) > 0 {
		compact, err := payload.CompactJSON()
		if err != nil {
			return "", err
		}
		body = compact
	}

	h := sha256.New()
	h.Write([]byte(apiKey))
	h.Write([]byte(hostname))
	h.Write([]byte(endpoint))
	h.Write([]byte(body))

	return hex.EncodeToString(h.Sum(nil)), nil
}
