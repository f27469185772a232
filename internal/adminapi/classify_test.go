package adminapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestClassify covers P10: the derived outcome matches the rules in
// spec section 4.7 — an error always outranks a noop flag.
func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeOK, classify(nil, false))
	assert.Equal(t, OutcomeNoop, classify(nil, true))
	assert.Equal(t, OutcomeError, classify(errors.New("boom"), false))
	assert.Equal(t, OutcomeError, classify(errors.New("boom"), true))
}
