package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternalActionKnownTypes(t *testing.T) {
	cases := map[string]string{
		"chat":             "user_input_normal",
		"user_input":       "user_input_normal",
		"input":            "user_input_normal",
		"prompt":           "user_input_normal",
		"pending_response": "user_input_pending",
		"reset":            "reset",
	}
	for msgType, want := range cases {
		got, ok := InternalAction(msgType)
		assert.True(t, ok, "type %q should be recognized", msgType)
		assert.Equal(t, want, got)
	}
}

func TestInternalActionUnknownType(t *testing.T) {
	_, ok := InternalAction("something_else")
	assert.False(t, ok)
}
