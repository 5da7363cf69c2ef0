// Package ticketcode generates and validates admission codes of the form
// TKT-<12 base36 chars>-<13 digit unix millis>.
package ticketcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var pattern = regexp.MustCompile(`^TKT-[0-9A-Z]{12}-[0-9]{13}$`)

// New returns a fresh code stamped with now.
func New(now time.Time) (string, error) {
	s, err := Random(12)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TKT-%s-%013d", s, now.UnixMilli()), nil
}

// Random returns n uppercase base36 characters drawn from crypto/rand.
func Random(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[v.Int64()]
	}
	return string(b), nil
}

// Valid reports whether code is well formed. Every input path that takes a
// ticket code checks this before touching storage.
func Valid(code string) bool {
	return pattern.MatchString(code)
}
