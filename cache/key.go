package cache

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"
)

// KeyPrefix is prepended to every derived key.
const KeyPrefix = "apicache:"

// Identity identifies a cacheable request.
type Identity struct {
	Method string
	URL    string
	Params map[string]any
}

// Key derives the storage key for id. Equal (method, URL, params) triples
// always produce equal keys regardless of map iteration or insertion order.
func Key(id Identity) (string, error) {
	method, params, err := normalize(id)
	if err != nil {
		return "", err
	}

	var material bytes.Buffer
	material.WriteString(method)
	material.WriteByte(0)
	material.WriteString(id.URL)
	material.WriteByte(0)
	material.WriteString(params)

	sum := xxh3.Hash128(material.Bytes()).Bytes()
	return KeyPrefix + hex.EncodeToString(sum[:]), nil
}

// normalize validates id and returns its upper-cased method and canonical params.
func normalize(id Identity) (string, string, error) {
	method := strings.ToUpper(strings.TrimSpace(id.Method))
	if method == "" {
		return "", "", fmt.Errorf("%w: empty method", ErrInvalidIdentity)
	}
	if strings.TrimSpace(id.URL) == "" {
		return "", "", fmt.Errorf("%w: empty url", ErrInvalidIdentity)
	}

	params, err := CanonicalParams(id.Params)
	if err != nil {
		return "", "", err
	}
	return method, params, nil
}

// CanonicalParams serializes params as JSON with object keys sorted at every
// nesting level and numbers kept as written.
func CanonicalParams(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("%w: params: %v", ErrInvalidIdentity, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("%w: params: %v", ErrInvalidIdentity, err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return "", fmt.Errorf("%w: params: %v", ErrInvalidIdentity, err)
	}
	return buf.String(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(x.String())
	case string:
		quoted, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(quoted)
	case []any:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			quoted, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(quoted)
			buf.WriteByte(':')
			if err := writeCanonical(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value of type %T", v)
	}
	return nil
}
