package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyPaymentSignature checks the signature the checkout widget returns:
// hex HMAC-SHA256 of "order_id|payment_id" keyed with the API key secret.
func VerifyPaymentSignature(orderID, paymentID, signature, keySecret string) bool {
	if orderID == "" || paymentID == "" || keySecret == "" {
		return false
	}
	return verify(keySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks X-Razorpay-Signature against the raw body
// keyed with the webhook secret.
func VerifyWebhookSignature(payload []byte, signatureHeader, secret string) bool {
	if secret == "" {
		return false
	}
	return verify(secret, payload, signatureHeader)
}

// Sign returns the hex HMAC-SHA256 of data.
func Sign(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret string, data []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	expected := Sign(secret, data)
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}
