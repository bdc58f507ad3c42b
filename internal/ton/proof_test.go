package ton

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testVerifier(domains ...string) *Verifier {
	return &Verifier{AllowedDomains: domains, MaxAge: DefaultMaxProofAge, Now: func() time.Time { return testNow }}
}

func signedProof(t *testing.T, domain string, ts time.Time) (ProofData, ed25519.PrivateKey) {
	t.Helper()
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}

	data := ProofData{
		Address:   FormatRawAddress(0, hash),
		PublicKey: hex.EncodeToString(pubKey),
		Proof: Proof{
			Timestamp: ts.Unix(),
			Domain:    ProofDomain{LengthBytes: len(domain), Value: domain},
			Payload:   "test-nonce-12345",
		},
	}
	digest := proofDigest(0, hash, data.Proof)
	data.Proof.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(privKey, digest[:]))
	return data, privKey
}

func TestVerify_ValidSignature(t *testing.T) {
	data, _ := signedProof(t, "test.example.com", testNow)

	addr, err := testVerifier("test.example.com").Verify(data)
	if err != nil {
		t.Fatalf("expected valid proof, got error: %v", err)
	}
	if addr != data.Address {
		t.Errorf("address = %s, want %s", addr, data.Address)
	}
}

func TestVerify_HexSignature(t *testing.T) {
	data, _ := signedProof(t, "test.example.com", testNow)
	sig, _ := base64.StdEncoding.DecodeString(data.Proof.Signature)
	data.Proof.Signature = hex.EncodeToString(sig)

	if _, err := testVerifier().Verify(data); err != nil {
		t.Fatalf("expected hex signature to verify, got: %v", err)
	}
}

func TestVerify_NormalizesAddress(t *testing.T) {
	data, _ := signedProof(t, "test", testNow)
	data.Address = strings.ToUpper(data.Address)

	addr, err := testVerifier().Verify(data)
	if err != nil {
		t.Fatal(err)
	}
	if addr != strings.ToLower(data.Address) {
		t.Errorf("address = %s, want lower-case raw form", addr)
	}
}

func TestVerify_ExpiredTimestamp(t *testing.T) {
	data, _ := signedProof(t, "test", testNow.Add(-10*time.Minute))
	if _, err := testVerifier().Verify(data); err == nil {
		t.Fatal("expected error for expired proof")
	}
}

func TestVerify_FutureTimestamp(t *testing.T) {
	data, _ := signedProof(t, "test", testNow.Add(10*time.Minute))
	if _, err := testVerifier().Verify(data); err == nil {
		t.Fatal("expected error for future proof")
	}
}

func TestVerify_WrongDomain(t *testing.T) {
	data, _ := signedProof(t, "evil.com", testNow)
	if _, err := testVerifier("good.com").Verify(data); err == nil {
		t.Fatal("expected error for wrong domain")
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	data, _ := signedProof(t, "test", testNow)
	data.Proof.Payload = "other-nonce"
	if _, err := testVerifier().Verify(data); err == nil {
		t.Fatal("expected error for tampered payload")
	}
}

func TestVerify_InvalidSignature(t *testing.T) {
	data, _ := signedProof(t, "test", testNow)
	data.Proof.Signature = hex.EncodeToString(make([]byte, 64))
	if _, err := testVerifier().Verify(data); err == nil {
		t.Fatal("expected error for invalid signature")
	}
}

func TestParseRawAddress(t *testing.T) {
	tests := []struct {
		input string
		wc    int32
		valid bool
	}{
		{"0:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789", 0, true},
		{"-1:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789", -1, true},
		{"invalid", 0, false},
		{"0:short", 0, false},
		{"x:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			wc, hash, err := ParseRawAddress(tt.input)
			if tt.valid {
				if err != nil {
					t.Fatalf("expected valid, got error: %v", err)
				}
				if wc != tt.wc {
					t.Errorf("workchain = %d, want %d", wc, tt.wc)
				}
				if len(hash) != 32 {
					t.Errorf("hash len = %d, want 32", len(hash))
				}
			} else if err == nil {
				t.Fatal("expected error for invalid address")
			}
		})
	}
}
