package order

import (
	"crypto/rand"
	"math/big"
)

const (
	trackingPrefix          = "TRK"
	trackingSuffixLength    = 10
	minTrackingNumberLength = 10
	trackingAlphabet        = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// TrackingGenerator returns a new tracking number.
type TrackingGenerator func() (string, error)

// GenerateTrackingNumber returns "TRK" followed by ten random uppercase
// alphanumerics, e.g. TRK7Q2M0ZK4XA.
func GenerateTrackingNumber() (string, error) {
	buf := make([]byte, 0, len(trackingPrefix)+trackingSuffixLength)
	buf = append(buf, trackingPrefix...)

	max := big.NewInt(int64(len(trackingAlphabet)))
	for i := 0; i < trackingSuffixLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf = append(buf, trackingAlphabet[n.Int64()])
	}

	return string(buf), nil
}
