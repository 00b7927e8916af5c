package prompt

import (
	"encoding/json"
	"strings"

	"github.com/aretw0/autopilot/pkg/domain"
)

// Classifier labels the last action response for prompt assembly.
type Classifier interface {
	Classify(response string, hasResponse bool, step int) domain.ResponseClass
}

// KeywordClassifier classifies by substring markers. It is a best-effort heuristic.
type KeywordClassifier struct {
	policy Policy
}

// NewKeywordClassifier creates a classifier using policy; zero fields take defaults.
func NewKeywordClassifier(policy Policy) *KeywordClassifier {
	return &KeywordClassifier{policy: policy.withDefaults()}
}

// Classify implements Classifier. Error markers win over success markers.
func (c *KeywordClassifier) Classify(response string, hasResponse bool, step int) domain.ResponseClass {
	response = strings.TrimSpace(response)
	if !hasResponse || response == "" {
		if step == 0 {
			return domain.ClassNewTaskStart
		}
		return domain.ClassUnclassified
	}
	if strings.HasPrefix(response, domain.ErrorPrefix) || containsAny(response, c.policy.ErrorMarkers) {
		return domain.ClassError
	}

	body, isJSON := decodeBody(response)
	if isJSON && body.emptyData() {
		return domain.ClassSuccessNoData
	}
	if !containsAny(response, c.policy.SuccessMarkers) {
		return domain.ClassUnclassified
	}
	switch {
	case isJSON && body.hasData:
		return domain.ClassSuccessWithData
	case !isJSON && containsAny(response, c.policy.DataMarkers):
		return domain.ClassSuccessWithData
	default:
		return domain.ClassSuccessUnclassified
	}
}

// responseBody is the conventional envelope {code, msg, data} of the target application.
type responseBody struct {
	raw     map[string]any
	hasData bool
	data    any
	msg     string
}

func decodeBody(response string) (responseBody, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(response), &obj); err != nil {
		return responseBody{}, false
	}
	b := responseBody{raw: obj}
	b.data, b.hasData = obj["data"]
	for _, k := range []string{"msg", "message"} {
		if m, ok := obj[k].(string); ok && strings.TrimSpace(m) != "" {
			b.msg = strings.TrimSpace(m)
			break
		}
	}
	if b.hasData && isEmptyValue(b.data) {
		b.hasData = false
	}
	return b, true
}

// emptyData reports a data field that is present but null or empty.
func (b responseBody) emptyData() bool {
	v, present := b.raw["data"]
	return present && isEmptyValue(v)
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func containsAny(s string, markers []string) bool {
	lower := strings.ToLower(s)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
