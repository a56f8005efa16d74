// Package payment holds adapters for the payment processor
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
)

// DefaultTolerance bounds how old a signed timestamp may be
const DefaultTolerance = 5 * time.Minute

// HMACVerifier checks "t=<unix>,v1=<hex>" signature headers computed as
// HMAC-SHA256(secret, "<t>.<payload>"). Several v1 values may be present while
// the processor rotates secrets; any match is accepted.
type HMACVerifier struct {
	secrets      [][]byte
	tolerance    time.Duration
	timeProvider coreport.TimeProvider
}

// NewHMACVerifier creates a verifier accepting signatures from any of secrets.
// A zero tolerance disables the timestamp check.
func NewHMACVerifier(secrets []string, tolerance time.Duration, timeProvider coreport.TimeProvider) *HMACVerifier {
	v := &HMACVerifier{tolerance: tolerance, timeProvider: timeProvider}
	for _, s := range secrets {
		if s != "" {
			v.secrets = append(v.secrets, []byte(s))
		}
	}
	return v
}

// Verify implements core.SignatureVerifier
func (v *HMACVerifier) Verify(payload []byte, header string) error {
	if len(v.secrets) == 0 {
		return fmt.Errorf("%w: no webhook secret configured", errs.ErrSignatureInvalid)
	}

	timestamp, signatures, err := parseHeader(header)
	if err != nil {
		return err
	}

	if v.tolerance > 0 {
		age := v.timeProvider.Now().Sub(time.Unix(timestamp, 0))
		if age > v.tolerance || age < -v.tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", errs.ErrSignatureInvalid)
		}
	}

	for _, secret := range v.secrets {
		expected := computeSignature(secret, timestamp, payload)
		for _, sig := range signatures {
			if hmac.Equal(expected, sig) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", errs.ErrSignatureInvalid)
}

// Sign builds a header for payload the way the processor does
func Sign(secret string, payload []byte, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature([]byte(secret), ts, payload)))
}

func computeSignature(secret []byte, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseHeader(header string) (int64, [][]byte, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("%w: missing signature header", errs.ErrSignatureInvalid)
	}

	var (
		timestamp  int64
		haveTime   bool
		signatures [][]byte
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
				return 0, nil, fmt.Errorf("%w: bad timestamp", errs.ErrSignatureInvalid)
			}
			timestamp, haveTime = ts, true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if !haveTime {
		return 0, nil, fmt.Errorf("%w: missing timestamp", errs.ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: missing v1 signature", errs.ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
}
