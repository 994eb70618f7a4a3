// Package chat generates the short, human-shareable codes that identify rooms.
package chat

import (
	"math/rand/v2"
	"strings"
)

const (
	codeLength   = 4
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// randomCode draws codeLength letters uniformly from codeAlphabet. rng is not
// safe for concurrent use; the Manager only calls this under its lock.
func randomCode(rng *rand.Rand) string {
	var b strings.Builder
	b.Grow(codeLength)
	for range codeLength {
		b.WriteByte(codeAlphabet[rng.IntN(len(codeAlphabet))])
	}
	return b.String()
}

// NormalizeCode upper-cases a client supplied code and reports whether it has
// the shape of a room code at all.
func NormalizeCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != codeLength {
		return "", false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return "", false
		}
	}
	return code, true
}
