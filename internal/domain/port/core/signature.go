package core

// SignatureVerifier authenticates payment-processor deliveries
type SignatureVerifier interface {
	// Verify returns ErrSignatureInvalid unless header carries a valid signature of payload
	Verify(payload []byte, header string) error
}
