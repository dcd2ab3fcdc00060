package auth

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	token := Sign("s3cret", "alice")
	if !Verify("s3cret", "alice", token) {
		t.Fatal("expected a freshly signed token to verify")
	}
}

func TestVerifyRejectsWrongUser(t *testing.T) {
	token := Sign("s3cret", "alice")
	if Verify("s3cret", "mallory", token) {
		t.Fatal("expected token signed for alice to fail for mallory")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token := Sign("s3cret", "alice")
	if Verify("different-secret", "alice", token) {
		t.Fatal("expected token to fail verification under a different secret")
	}
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	if Verify("s3cret", "alice", "not-hex!!") {
		t.Fatal("expected malformed token to fail verification")
	}
}
