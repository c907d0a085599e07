package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateOrderNumber returns a human readable order number of the form
// ORD-YYYYMMDD-HHMMSS-mmm-RRRR.
func GenerateOrderNumber() string {
	return generateNumber("ORD", time.Now().UTC())
}

func generateNumber(prefix string, now time.Time) string {
	millis := now.Nanosecond() / int(time.Millisecond)

	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 10000)
	}

	return fmt.Sprintf("%s-%s-%03d-%04d", prefix, now.Format("20060102-150405"), millis, n.Int64())
}
