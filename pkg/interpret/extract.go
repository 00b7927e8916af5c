package interpret

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/titanous/json5"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is a decoded JSON object that keeps its keys in document order.
type Object = orderedmap.OrderedMap[string, any]

// ExtractJSON returns the first balanced-brace object in text.
// Braces inside JSON strings are ignored.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end := matchBrace(text, start); end > 0 {
			return text[start : end+1], nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", domain.ErrNoJSON
}

func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// CutBraces returns text from the first "{" to the last "}".
func CutBraces(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", domain.ErrNoJSON
	}
	return text[start : end+1], nil
}

// DecodeObject parses a JSON object, falling back to JSON5 for the trailing commas,
// single quotes and comments models tend to produce.
func DecodeObject(text string) (map[string]any, error) {
	var obj map[string]any
	err := json.Unmarshal([]byte(text), &obj)
	if err == nil {
		return obj, nil
	}
	if err5 := json5.Unmarshal([]byte(text), &obj); err5 == nil {
		return obj, nil
	}
	return nil, fmt.Errorf("decode object: %w", err)
}

// ParseObject extracts and decodes the first JSON object in text, keeping key order.
func ParseObject(text string) (*Object, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	return DecodeOrdered(raw)
}

// DecodeOrdered parses a JSON object into an Object, with every nested object
// ordered as well. Input that only JSON5 accepts is decoded through JSON5 and its
// keys fall back to sorted order.
func DecodeOrdered(text string) (*Object, error) {
	v, err := decodeValue(text)
	if err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	obj, ok := v.(*Object)
	if !ok || obj == nil {
		return nil, fmt.Errorf("decode object: %w", domain.ErrNoJSON)
	}
	return obj, nil
}

func newObject(capacity int) *Object {
	return orderedmap.New[string, any](capacity)
}

// decodeValue decodes any JSON value with objects as *Object.
func decodeValue(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	v, err := readValue(dec)
	if err == nil {
		if _, err = dec.Token(); errors.Is(err, io.EOF) {
			return v, nil
		}
		err = errors.New("trailing data after value")
	}
	var loose any
	if err5 := json5.Unmarshal([]byte(text), &loose); err5 == nil {
		return ordered(loose), nil
	}
	return nil, err
}

func readValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		obj := newObject(0)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is not a string", kt)
			}
			v, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			obj.Set(key, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		list := []any{}
		for dec.More() {
			v, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return list, nil
	}
	return nil, fmt.Errorf("unexpected %v", delim)
}

// ordered converts plain maps to Objects with sorted keys.
func ordered(v any) any {
	switch t := v.(type) {
	case map[string]any:
		obj := newObject(len(t))
		for _, k := range sortedKeys(t) {
			obj.Set(k, ordered(t[k]))
		}
		return obj
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ordered(item)
		}
		return out
	}
	return v
}

// plain converts Objects back to maps for decoding and encoding.
func plain(v any) any {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return nil
		}
		out := make(map[string]any, t.Len())
		for p := t.Oldest(); p != nil; p = p.Next() {
			out[p.Key] = plain(p.Value)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = plain(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	}
	return v
}
