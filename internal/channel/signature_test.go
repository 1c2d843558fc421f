package channel

import "testing"

func TestVerifySignatureRoundTrip(t *testing.T) {
	body := []byte(`{"order":{"id":"ORD-1","total":15990}}`)
	secret := "s3cr3t-tenant-key"

	sig := Sign(body, secret)
	if !VerifySignature(body, sig, secret) {
		t.Fatal("expected valid signature to verify")
	}
	if !VerifySignature(body, "sha256="+sig, secret) {
		t.Fatal("expected prefixed signature to verify")
	}
}

func TestVerifySignatureRejectsMutations(t *testing.T) {
	body := []byte(`{"order":{"id":"ORD-1"}}`)
	secret := "s3cr3t"
	sig := Sign(body, secret)

	mutated := append([]byte(nil), body...)
	mutated[10] ^= 0x01
	if VerifySignature(mutated, sig, secret) {
		t.Fatal("mutated body must not verify")
	}

	badSig := []byte(sig)
	if badSig[0] == 'a' {
		badSig[0] = 'b'
	} else {
		badSig[0] = 'a'
	}
	if VerifySignature(body, string(badSig), secret) {
		t.Fatal("mutated signature must not verify")
	}
	if VerifySignature(body, sig, "other-secret") {
		t.Fatal("wrong secret must not verify")
	}
}

func TestVerifySignatureMalformedInputs(t *testing.T) {
	body := []byte(`{}`)
	if VerifySignature(body, "not-hex!!", "secret") {
		t.Fatal("non-hex signature must be treated as no match")
	}
	if VerifySignature(body, "abcd", "secret") {
		t.Fatal("short signature must be treated as no match")
	}
	if VerifySignature(body, Sign(body, "secret"), "") {
		t.Fatal("empty secret must never match")
	}
}
