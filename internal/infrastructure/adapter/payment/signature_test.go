package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	coremocks "github.com/amirhossein-jamali/escrow-engine/mocks/port/core"
)

func TestHMACVerifier(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	tp := coremocks.NewMockTimeProvider(t)
	tp.EXPECT().Now().Return(now).Maybe()

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	verifier := NewHMACVerifier([]string{"whsec_new", "whsec_old"}, DefaultTolerance, tp)

	tests := []struct {
		name    string
		payload []byte
		header  string
		wantErr bool
	}{
		{name: "Valid current secret", payload: payload, header: Sign("whsec_new", payload, now)},
		{name: "Valid rotated secret", payload: payload, header: Sign("whsec_old", payload, now.Add(-time.Minute))},
		{name: "Valid among several v1", payload: payload, header: Sign("whsec_new", payload, now) + ",v1=deadbeef"},
		{name: "Wrong secret", payload: payload, header: Sign("whsec_other", payload, now), wantErr: true},
		{name: "Tampered payload", payload: []byte(`{"id":"evt_2"}`), header: Sign("whsec_new", payload, now), wantErr: true},
		{name: "Too old", payload: payload, header: Sign("whsec_new", payload, now.Add(-6*time.Minute)), wantErr: true},
		{name: "From the future", payload: payload, header: Sign("whsec_new", payload, now.Add(6*time.Minute)), wantErr: true},
		{name: "Empty header", payload: payload, header: "", wantErr: true},
		{name: "No timestamp", payload: payload, header: "v1=abcd", wantErr: true},
		{name: "Bad timestamp", payload: payload, header: "t=abc,v1=abcd", wantErr: true},
		{name: "No signature", payload: payload, header: "t=1717236000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifier.Verify(tt.payload, tt.header)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrSignatureInvalid)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHMACVerifierWithoutSecret(t *testing.T) {
	tp := coremocks.NewMockTimeProvider(t)
	verifier := NewHMACVerifier([]string{""}, 0, tp)
	err := verifier.Verify([]byte("{}"), Sign("x", []byte("{}"), time.Now()))
	assert.ErrorIs(t, err, errs.ErrSignatureInvalid)
}

func TestZeroToleranceSkipsTimestampCheck(t *testing.T) {
	tp := coremocks.NewMockTimeProvider(t)
	verifier := NewHMACVerifier([]string{"s"}, 0, tp)
	payload := []byte("{}")
	assert.NoError(t, verifier.Verify(payload, Sign("s", payload, time.Unix(0, 0))))
}
