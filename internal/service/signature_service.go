package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// HMACSignatureService implements ports.SignatureService using HMAC-SHA256
// over "<timestamp>.<payload>".
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA256 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign returns the header value "t=<timestamp>,v1=<lowercase hex mac>".
func (s *HMACSignatureService) Sign(secret string, timestamp int64, payload []byte) string {
	return "t=" + strconv.FormatInt(timestamp, 10) + ",v1=" + mac(secret, timestamp, payload)
}

// Verify checks a header produced by Sign. The timestamp must be within
// tolerance of now; a zero tolerance skips the freshness check.
func (s *HMACSignatureService) Verify(secret string, header string, payload []byte, now time.Time, tolerance time.Duration) bool {
	var (
		timestamp int64
		haveTS    bool
		sigs      []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return false
			}
			timestamp, haveTS = ts, true
		case "v1":
			sigs = append(sigs, value)
		}
	}
	if !haveTS || len(sigs) == 0 {
		return false
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return false
		}
	}

	expected := []byte(mac(secret, timestamp, payload))
	for _, sig := range sigs {
		// Constant-time comparison to prevent timing attacks.
		if hmac.Equal(expected, []byte(sig)) {
			return true
		}
	}
	return false
}

func mac(secret string, timestamp int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	h.Write([]byte{'.'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
