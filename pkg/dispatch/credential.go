package dispatch

import (
	"encoding/json"
	"strings"
)

// tokenFields are the top-level names searched after data.token, in order.
var tokenFields = []string{"token", "accessToken", "access_token", "authToken", "jwt"}

// ExtractCredential finds a bearer token in a login response body.
// data.token wins, then the first non-empty field of tokenFields.
func ExtractCredential(body string) (string, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return "", false
	}

	if data, ok := obj["data"].(map[string]any); ok {
		if tok, ok := nonEmpty(data["token"]); ok {
			return tok, true
		}
	}
	for _, f := range tokenFields {
		if tok, ok := nonEmpty(obj[f]); ok {
			return tok, true
		}
	}
	return "", false
}

func nonEmpty(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
