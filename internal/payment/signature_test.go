package payment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/okybprasetya/marketplace/internal/payment"
)

func TestHMACVerifier(t *testing.T) {
	const secret = "webhook-secret"
	body := []byte(`{"orderId":"550e8400-e29b-41d4-a716-446655440000","status":"success"}`)

	verifier := payment.NewHMACVerifier(secret)

	t.Run("valid_signature", func(t *testing.T) {
		assert.True(t, verifier.Verify(body, payment.Sign(secret, body)))
	})

	t.Run("tampered_body", func(t *testing.T) {
		sig := payment.Sign(secret, body)
		tampered := []byte(`{"orderId":"550e8400-e29b-41d4-a716-446655440000","status":"failed"}`)
		assert.False(t, verifier.Verify(tampered, sig))
	})

	t.Run("wrong_secret", func(t *testing.T) {
		assert.False(t, verifier.Verify(body, payment.Sign("other-secret", body)))
	})

	t.Run("signature_not_hex", func(t *testing.T) {
		assert.False(t, verifier.Verify(body, "zzzz"))
	})

	t.Run("empty_signature", func(t *testing.T) {
		assert.False(t, verifier.Verify(body, ""))
	})
}

func TestHMACVerifier_EmptySecretDisablesVerification(t *testing.T) {
	verifier := payment.NewHMACVerifier("")

	assert.True(t, verifier.Verify([]byte("anything"), ""))
	assert.True(t, verifier.Verify([]byte("anything"), "not-a-real-signature"))
}
