package webhooks

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

// SignatureHeader carries "t=<unix seconds>,v1=<hex HMAC-SHA256>". The MAC
// covers "<t>." followed by the raw body.
const SignatureHeader = "X-Visitplan-Signature"

var (
	ErrBadSignature   = errors.New("webhooks: signature mismatch")
	ErrStaleSignature = errors.New("webhooks: signature timestamp outside tolerance")
)

// Sign returns the SignatureHeader value for body sent at ts.
func Sign(secret string, ts time.Time, body []byte) string {
	t := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", t, hex.EncodeToString(mac(secret, t, body)))
}

// Verify checks a SignatureHeader value. A zero tolerance skips the
// timestamp check.
func Verify(secret, header string, body []byte, now time.Time, tolerance time.Duration) error {
	var (
		t   int64
		sig []byte
		err error
	)
	for _, part := range strings.Split(header, ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "t":
			if t, err = strconv.ParseInt(v, 10, 64); err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrBadSignature)
			}
		case "v1":
			if sig, err = hex.DecodeString(v); err != nil {
				return fmt.Errorf("%w: bad digest", ErrBadSignature)
			}
		}
	}
	if t == 0 || sig == nil {
		return fmt.Errorf("%w: missing fields", ErrBadSignature)
	}
	if !hmac.Equal(mac(secret, t, body), sig) {
		return ErrBadSignature
	}
	if tolerance > 0 {
		if d := now.Sub(time.Unix(t, 0)); d > tolerance || d < -tolerance {
			return ErrStaleSignature
		}
	}
	return nil
}

func mac(secret string, t int64, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(t, 10)))
	h.Write([]byte{'.'})
	h.Write(body)
	return h.Sum(nil)
}
