package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBase36(t *testing.T) {
	cases := map[uint64]string{
		0:  "0",
		1:  "1",
		35: "z",
		36: "10",
	}
	for in, want := range cases {
		assert.Equal(t, want, EncodeBase36(in))
	}
}

func TestNewSessionIDUniqueAndPrefixed(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	require.NotEqual(t, a, b)
	assert.Regexp(t, `^sess_[0-9a-z]{20}$`, a)
}

func TestNewRequestIDPrefixed(t *testing.T) {
	assert.Regexp(t, `^req_[0-9a-z]{16}$`, NewRequestID())
}

func TestNewIdempotencyKeyPrefixed(t *testing.T) {
	assert.Regexp(t, `^idem_[0-9a-z]{24}$`, NewIdempotencyKey())
}

func TestNewLockTokenPrefixed(t *testing.T) {
	assert.Regexp(t, `^lock_[0-9a-z]{16}$`, NewLockToken())
}
