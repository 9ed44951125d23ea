package service

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"tripplanner/internal/models"
)

const (
	referenceSuffixLen = 9
	referenceAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var alphabetSize = big.NewInt(int64(len(referenceAlphabet)))

// NewBookingReference returns "BK", the unix time in milliseconds and nine
// random base36 characters, upper-cased.
func NewBookingReference() (string, error) {
	var b strings.Builder
	b.WriteString(models.BookingReferencePrefix)
	b.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	for i := 0; i < referenceSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(referenceAlphabet[n.Int64()])
	}
	return strings.ToUpper(b.String()), nil
}
