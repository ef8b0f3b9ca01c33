package storage

import (
	"encoding/json"
	"fmt"

	"github.com/guregu/null/v5"
)

// DecodeHeaders turns a stored requestHeaders document into a header map.
// An empty column, malformed JSON, or a JSON value that is not an object
// yields no headers; the route is still probed.
func DecodeHeaders(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return obj
}

// EncodeHeaders is the inverse of DecodeHeaders. No headers encode as NULL.
func EncodeHeaders(headers map[string]any) (null.String, error) {
	if len(headers) == 0 {
		return null.String{}, nil
	}
	b, err := json.Marshal(headers)
	if err != nil {
		return null.String{}, fmt.Errorf("encoding requestHeaders: %w", err)
	}
	return null.StringFrom(string(b)), nil
}
