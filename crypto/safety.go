package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// SafetyNumber computes the human-comparable fingerprint two parties
// use to verify each other out of band. The two public keys are sorted
// lexicographically before hashing, so both sides compute the same
// value regardless of argument order. The digest is rendered as four
// zero-padded 4-digit groups, each group a 16-bit slice of the digest
// reduced mod 10000.
func SafetyNumber(a, b [32]byte) string {
	first, second := a, b
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}

	h := sha256.New()
	h.Write(first[:])
	h.Write(second[:])
	sum := h.Sum(nil)

	groups := make([]string, 4)
	for i := 0; i < 4; i++ {
		v := binary.BigEndian.Uint16(sum[i*2 : i*2+2])
		groups[i] = fmt.Sprintf("%04d", v%10000)
	}
	return strings.Join(groups, " ")
}
