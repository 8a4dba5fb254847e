package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopSinkNeverPanics(t *testing.T) {
	var s Sink = NoopSink{}
	assert.NotPanics(t, func() {
		s.Record("task", 1, map[string]any{"x": 1})
		s.Record("reply", 0, nil)
	})
	assert.NoError(t, s.Close())
}
