package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/autopilot/pkg/domain"
)

// Summarize renders the narrative of the previous turn for class.
func Summarize(class domain.ResponseClass, response string, policy Policy) string {
	policy = policy.withDefaults()
	body, isJSON := decodeBody(strings.TrimSpace(response))

	switch class {
	case domain.ClassNewTaskStart:
		return "This is a new task. No action has been taken yet."
	case domain.ClassSuccessNoData:
		if isJSON && body.msg != "" {
			return fmt.Sprintf("The last operation succeeded: %s. It returned no data.", body.msg)
		}
		return "The last query returned an empty result (no data). There is nothing further to process; the task can most likely be marked complete."
	case domain.ClassSuccessWithData:
		if isJSON {
			return "The last operation succeeded and returned data:\n" + SummarizeData(body.data, policy)
		}
		return "The last operation succeeded and returned data:\n" + excerpt(response, policy.RawExcerptLen)
	case domain.ClassSuccessUnclassified:
		return "The last operation succeeded. Response:\n" + excerpt(response, policy.RawExcerptLen)
	case domain.ClassError:
		return "The last operation failed. Response:\n" + excerpt(response, policy.RawExcerptLen)
	default:
		if strings.TrimSpace(response) == "" {
			return "No response was recorded for the last step."
		}
		return "Last response:\n" + excerpt(response, policy.RawExcerptLen)
	}
}

// SummarizeData renders data as compact JSON followed by up to policy.SummaryFields
// fields with type hints, each value truncated to policy.SummaryValueLen runes.
func SummarizeData(data any, policy Policy) string {
	policy = policy.withDefaults()
	var sb strings.Builder

	compact, _ := json.Marshal(data)
	sb.WriteString(excerpt(string(compact), policy.RawExcerptLen))

	var fields map[string]any
	switch t := data.(type) {
	case map[string]any:
		fields = t
	case []any:
		fmt.Fprintf(&sb, "\nA list with %d item(s).", len(t))
		if first, ok := firstObject(t); ok {
			sb.WriteString(" Fields of the first item:")
			fields = first
		}
	}
	if len(fields) == 0 {
		return sb.String()
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > policy.SummaryFields {
		keys = keys[:policy.SummaryFields]
	}
	for _, k := range keys {
		v := fields[k]
		fmt.Fprintf(&sb, "\n- %s (%s): %s", k, typeHint(v), truncate(valueText(v), policy.SummaryValueLen))
	}
	return sb.String()
}

func firstObject(list []any) (map[string]any, bool) {
	if len(list) == 0 {
		return nil, false
	}
	m, ok := list[0].(map[string]any)
	return m, ok
}

func typeHint(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "unknown"
}

func valueText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	case map[string]any, []any:
		b, _ := json.Marshal(t)
		return string(b)
	}
	return fmt.Sprint(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func excerpt(s string, n int) string {
	return truncate(strings.TrimSpace(s), n)
}
