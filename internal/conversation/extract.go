package conversation

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	stopRe = regexp.MustCompile(`(?i)\bstop\b`)
	codeRe = regexp.MustCompile(`\b\d{5}\b`)
)

// containsStopKeyword reports whether the resuming input aborts the pending
// secure operation.
func containsStopKeyword(s string) bool {
	return stopRe.MatchString(s)
}

// extractCode pulls the first standalone 5-digit sequence out of free text.
func extractCode(s string) (string, bool) {
	code := codeRe.FindString(s)
	return code, code != ""
}

// stringField reads a string value from a parsed classifier object.
func stringField(obj map[string]any, key string) string {
	v, _ := obj[key].(string)
	return v
}

// transferFields extracts the receiver account number and amount from the
// classifier's data object. Classifiers variously emit numbers as JSON
// numbers or strings; both are accepted. Returns ok=false when either field
// is missing or unusable — the machine asks for clarification instead of
// guessing.
func transferFields(obj map[string]any) (receiver string, amount int64, ok bool) {
	data, _ := obj["data"].(map[string]any)
	if data == nil {
		return "", 0, false
	}

	switch v := data["receiverAccountNumber"].(type) {
	case string:
		receiver = strings.TrimSpace(v)
	case float64:
		// A numeric account number has lost any leading zeros; reject it.
		return "", 0, false
	}
	if receiver == "" {
		return "", 0, false
	}

	switch v := data["amount"].(type) {
	case float64:
		amount = int64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return "", 0, false
		}
		amount = n
	default:
		return "", 0, false
	}
	if amount <= 0 {
		return "", 0, false
	}

	return receiver, amount, true
}
