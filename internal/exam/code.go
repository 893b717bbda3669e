package exam

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet deliberately excludes lowercase so codes survive being read
// aloud or typed from paper.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of a student access code.
const CodeLength = 6

// NewCode returns a random uppercase alphanumeric access code. The source is
// crypto/rand so codes cannot be predicted from previously issued ones;
// rejection sampling keeps the character distribution uniform.
func NewCode() (string, error) {
	out := make([]byte, CodeLength)
	buf := make([]byte, 1)
	// Largest multiple of len(codeAlphabet) below 256.
	limit := byte(256 - 256%len(codeAlphabet))
	for i := 0; i < CodeLength; {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		if buf[0] >= limit {
			continue
		}
		out[i] = codeAlphabet[int(buf[0])%len(codeAlphabet)]
		i++
	}
	return string(out), nil
}
