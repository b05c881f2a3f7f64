// Package validate distinguishes network-level success (a response was
// received) from user-level success (the response looks like the content
// the user actually wanted, not an error or block page).
package validate

import "strings"

var errorPatterns = []string{
	"blocked", "forbidden", "access denied", "error 403", "error 404",
}

// Validator has no state; it exists so validation can be swapped or mocked
// the way the rest of the core's collaborators are.
type Validator struct{}

// New returns a Validator.
func New() *Validator { return &Validator{} }

// Validate reports network-level and user-level success for an HTTP
// response. networkSuccess is true for any 2xx or 3xx status. userSuccess
// additionally requires a non-empty body that doesn't look like an error
// or block page once reduced to its printable-ASCII, lowercased content.
func (v *Validator) Validate(statusCode int, body []byte) (networkSuccess, userSuccess bool) {
	networkSuccess = statusCode >= 200 && statusCode < 400
	if !networkSuccess {
		return false, false
	}

	if len(body) == 0 {
		return networkSuccess, false
	}

	content := printableLower(body)
	userSuccess = !containsErrorPattern(content)
	return networkSuccess, userSuccess
}

func printableLower(body []byte) string {
	var sb strings.Builder
	sb.Grow(len(body))
	for _, b := range body {
		switch {
		case b >= 32 && b < 127:
			sb.WriteByte(b)
		case b == '\n' || b == '\r' || b == '\t':
			sb.WriteByte(b)
		}
	}
	return strings.ToLower(sb.String())
}

func containsErrorPattern(content string) bool {
	for _, pattern := range errorPatterns {
		if strings.Contains(content, pattern) {
			return true
		}
	}
	return false
}
