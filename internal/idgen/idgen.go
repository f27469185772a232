// Package idgen generates the opaque identifiers used outside the
// ledger's own monotonic code_id sequence: session ids, request ids,
// and idempotency-key fallbacks. It reuses the teacher's base36
// hash-id encoding (internal/idgen/hash.go) since that scheme already
// produces short, URL-safe, case-insensitive identifiers.
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EncodeBase36 renders n in base 36, lowercase, with no leading zeros
// (other than the value 0 itself).
func EncodeBase36(n uint64) string {
	if n == 0 {
		return "0"
	}
	var sb strings.Builder
	for n > 0 {
		sb.WriteByte(base36Alphabet[n%36])
		n /= 36
	}
	s := sb.String()
	runes := []byte(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// randomBase36 returns a random base36 string of exactly n characters,
// using crypto/rand so ids are unguessable enough to serve as bearer
// tokens in X-Session-ID headers.
func randomBase36(n int) string {
	alphabetLen := big.NewInt(int64(len(base36Alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			// crypto/rand failure means the platform RNG is broken; there
			// is no sane recovery, so fall back to a fixed low-entropy
			// character rather than panic mid-request.
			out[i] = '0'
			continue
		}
		out[i] = base36Alphabet[idx.Int64()]
	}
	return string(out)
}

// NewSessionID generates a new analyst session identifier, prefixed so
// it is recognizable in logs and audit rows.
func NewSessionID() string {
	return "sess_" + randomBase36(20)
}

// NewRequestID generates a new per-HTTP-request correlation id.
func NewRequestID() string {
	return "req_" + randomBase36(16)
}

// NewIdempotencyKey generates a random idempotency key. The onto CLI
// calls it to fill the idempotency_key body field of a confirmed
// mutation when the operator passed no --idempotency-key; a key
// generated this way is not reused across separate CLI invocations.
func NewIdempotencyKey() string {
	return "idem_" + randomBase36(24)
}

// NewLockToken generates an opaque token identifying one advisory-lock
// acquisition, returned to the holder so a future release call can
// prove it still owns the lock.
func NewLockToken() string {
	return fmt.Sprintf("lock_%s", randomBase36(16))
}
