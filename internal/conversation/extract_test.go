package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsStopKeyword(t *testing.T) {
	assert.True(t, containsStopKeyword("stop"))
	assert.True(t, containsStopKeyword("please STOP now"))
	assert.True(t, containsStopKeyword("Stop."))
	assert.False(t, containsStopKeyword("unstoppable"))
	assert.False(t, containsStopKeyword("stops"))
	assert.False(t, containsStopKeyword("12345"))
}

func TestExtractCode(t *testing.T) {
	code, ok := extractCode("my code is 12345, thanks")
	assert.True(t, ok)
	assert.Equal(t, "12345", code)

	_, ok = extractCode("no digits here")
	assert.False(t, ok)

	// Longer runs are not passcodes.
	_, ok = extractCode("account 0377052365")
	assert.False(t, ok)

	code, ok = extractCode("123 45678 99999")
	assert.True(t, ok)
	assert.Equal(t, "45678", code)
}

func TestTransferFields(t *testing.T) {
	receiver, amount, ok := transferFields(map[string]any{
		"intent": "transfer",
		"data":   map[string]any{"receiverAccountNumber": "1234567890", "amount": float64(5000)},
	})
	assert.True(t, ok)
	assert.Equal(t, "1234567890", receiver)
	assert.Equal(t, int64(5000), amount)

	// Amount as a string is tolerated.
	_, amount, ok = transferFields(map[string]any{
		"data": map[string]any{"receiverAccountNumber": "1234567890", "amount": "2500"},
	})
	assert.True(t, ok)
	assert.Equal(t, int64(2500), amount)

	// Null fields, missing data, numeric account numbers, bad amounts.
	for name, data := range map[string]map[string]any{
		"nil data":        nil,
		"null fields":     {"receiverAccountNumber": nil, "amount": nil},
		"numeric account": {"receiverAccountNumber": float64(1234567890), "amount": float64(100)},
		"missing amount":  {"receiverAccountNumber": "1234567890"},
		"zero amount":     {"receiverAccountNumber": "1234567890", "amount": float64(0)},
		"garbage amount":  {"receiverAccountNumber": "1234567890", "amount": "lots"},
	} {
		obj := map[string]any{}
		if data != nil {
			obj["data"] = data
		}
		_, _, ok := transferFields(obj)
		assert.False(t, ok, name)
	}
}
