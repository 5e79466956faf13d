package cli

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// parseParams turns key=value pairs into request params. Values that are
// valid JSON numbers, booleans, arrays or objects keep their JSON type;
// everything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param %q, expected key=value", pair)
		}
		params[key] = paramValue(value)
	}
	return params, nil
}

func paramValue(raw string) any {
	if raw == "" || raw == "null" {
		return raw
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	if _, isString := v.(string); isString {
		return raw
	}
	return v
}
