package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks an HMAC-SHA256 hex signature over the raw request
// body against the shared secret. It must run on the raw bytes, before any
// JSON parsing. A malformed signature (non-hex, wrong length) is treated as
// "no match", never as an error; the comparison is constant-time.
func VerifySignature(rawBody []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	signature = strings.ToLower(strings.TrimSpace(signature))
	signature = strings.TrimPrefix(signature, "sha256=")
	supplied, err := hex.DecodeString(signature)
	if err != nil || len(supplied) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(supplied, mac.Sum(nil))
}

// Sign computes the hex HMAC-SHA256 signature a channel would attach to the
// given body. Used by tests and sandbox tooling.
func Sign(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
