// Package auth verifies the bearer identity attached to each inbound
// Gateway connection. The account system (login/signup, password storage)
// is an external collaborator; this package only checks that a userId
// presented over the wire was actually signed by that collaborator's
// shared secret, so a client can't simply claim to be any user id it
// likes against the dispatcher (SPEC_FULL.md §0.2, SIGNING_SECRET).
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign produces the bearer token for userID under secret: the hex-encoded
// HMAC-SHA256 of the user id. The external identity collaborator mints
// this token at login; the Gateway only ever verifies it.
func Sign(secret, userID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether token is the valid bearer token for userID under
// secret, using a constant-time comparison so the check itself can't leak
// timing information about the secret.
func Verify(secret, userID, token string) bool {
	want, err := hex.DecodeString(token)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(userID))
	return hmac.Equal(want, mac.Sum(nil))
}
