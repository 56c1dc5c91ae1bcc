package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signRazorpay(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func signCashfree(ts string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyRazorpay(t *testing.T) {
	v := NewVerifier("cf-secret", "rzp-secret")
	body := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK","data":{"order":{"order_id":"order_abc123"}}}`)

	h := http.Header{}
	h.Set("x-razorpay-signature", signRazorpay(body, "rzp-secret"))

	assert.True(t, v.Verify(ProviderRazorpay, body, h))
}

func TestVerifyCashfree(t *testing.T) {
	v := NewVerifier("cf-secret", "rzp-secret")
	body := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK"}`)

	h := http.Header{}
	h.Set("x-webhook-timestamp", "1693400000")
	h.Set("x-webhook-signature", signCashfree("1693400000", body, "cf-secret"))

	assert.True(t, v.Verify(ProviderCashfree, body, h))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	v := NewVerifier("cf-secret", "rzp-secret")
	body := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK","amount":54300}`)

	h := http.Header{}
	h.Set("x-razorpay-signature", signRazorpay(body, "rzp-secret"))

	// flip one byte after signing
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] ^= 0x01

	assert.False(t, v.Verify(ProviderRazorpay, tampered, h))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewVerifier("cf-secret", "rzp-secret")
	body := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK"}`)

	h := http.Header{}
	h.Set("x-razorpay-signature", signRazorpay(body, "other-secret"))

	assert.False(t, v.Verify(ProviderRazorpay, body, h))
}

func TestVerifyRejectsMissingPieces(t *testing.T) {
	v := NewVerifier("cf-secret", "rzp-secret")
	body := []byte(`{}`)

	assert.False(t, v.Verify(ProviderRazorpay, body, http.Header{}), "no signature header")

	h := http.Header{}
	h.Set("x-webhook-signature", signCashfree("1693400000", body, "cf-secret"))
	assert.False(t, v.Verify(ProviderCashfree, body, h), "no timestamp header")

	assert.False(t, v.Verify(Provider("stripe"), body, h), "unknown provider")

	empty := NewVerifier("", "")
	h2 := http.Header{}
	h2.Set("x-razorpay-signature", signRazorpay(body, ""))
	assert.False(t, empty.Verify(ProviderRazorpay, body, h2), "empty secret")
}
