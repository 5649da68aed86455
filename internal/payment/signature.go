package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const SignatureHeader = "Paymongo-Signature"

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign returns a header value in the form t=<unix>,v1=<hex hmac>.
func Sign(secret string, body []byte, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", unix, computeSignature(secret, unix, body))
}

// VerifySignature checks an HMAC-SHA256 over "<t>.<body>". The provider
// sends the digest as te (test) or li (live); v1 is accepted as well.
func VerifySignature(secret, header string, body []byte, now time.Time, tolerance time.Duration) error {
	if header == "" {
		return fmt.Errorf("%w: header missing", ErrInvalidSignature)
	}

	var timestamp string
	var digests []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1", "te", "li":
			if value != "" {
				digests = append(digests, value)
			}
		}
	}

	if timestamp == "" || len(digests) == 0 {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}

	expected := computeSignature(secret, timestamp, body)
	for _, d := range digests {
		if hmac.Equal([]byte(expected), []byte(strings.ToLower(d))) {
			return nil
		}
	}
	return fmt.Errorf("%w: digest mismatch", ErrInvalidSignature)
}

func computeSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
