package audit

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Redacted replaces denied header values and body fields before storage.
const Redacted = "[REDACTED]"

// maxStoredBody caps how much of a non-JSON body is persisted.
const maxStoredBody = 10000

// maxErrorMessage caps the raw-body fallback for error extraction.
const maxErrorMessage = 500

// deniedHeaders are header keys whose values never reach storage.
var deniedHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"token":               true,
	"x-api-key":           true,
	"x-admin-token":       true,
	"api-key":             true,
	"x-auth-token":        true,
}

// deniedFields are JSON body field names redacted recursively.
var deniedFields = map[string]bool{
	"password":              true,
	"password_confirmation": true,
	"token":                 true,
	"api_key":               true,
	"apikey":                true,
	"secret":                true,
	"authorization":         true,
	"credit_card":           true,
	"card_number":           true,
	"cvv":                   true,
	"ssn":                   true,
}

// SanitizeHeaders renders headers as a JSON object with denied keys
// redacted. Multi-valued headers are joined with ", ".
func SanitizeHeaders(h http.Header) string {
	if len(h) == 0 {
		return "{}"
	}
	out := make(map[string]string, len(h))
	for key, values := range h {
		if deniedHeaders[strings.ToLower(key)] {
			out[key] = Redacted
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// SanitizeBody redacts denied fields in a JSON body, walking nested objects
// and arrays. Non-JSON bodies are stored raw, truncated.
func SanitizeBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		if len(body) > maxStoredBody {
			body = body[:maxStoredBody]
		}
		return string(body)
	}

	sanitized, err := json.Marshal(redactValue(decoded))
	if err != nil {
		return ""
	}
	if len(sanitized) > maxStoredBody {
		sanitized = sanitized[:maxStoredBody]
	}
	return string(sanitized)
}

func redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for key, inner := range val {
			if deniedFields[strings.ToLower(key)] {
				val[key] = Redacted
				continue
			}
			val[key] = redactValue(inner)
		}
		return val
	case []interface{}:
		for i, inner := range val {
			val[i] = redactValue(inner)
		}
		return val
	default:
		return v
	}
}

// ExtractErrorMessage pulls a human-readable error out of a response body:
// the JSON "message" or "error" field when parseable, otherwise the first
// 500 characters of the raw body.
func ExtractErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err == nil {
		for _, key := range []string{"message", "error"} {
			if s, ok := decoded[key].(string); ok && s != "" {
				return s
			}
		}
	}

	if len(body) > maxErrorMessage {
		body = body[:maxErrorMessage]
	}
	return string(body)
}
