// Package token generates portal handle tokens.
package token

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
)

// Generate returns prefix followed by a random hex suffix. Tokens must be
// valid D-Bus object path elements.
func Generate(prefix string) string {
	str := strings.Builder{}
	str.WriteString(prefix)
	a, _ := rand.Int(rand.Reader, big.NewInt(1<<32))
	str.WriteString(strconv.FormatUint(a.Uint64(), 16))
	return str.String()
}
