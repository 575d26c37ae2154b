package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func computeExpectedSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func formatGitHubSignature(hexSig string) string {
	return "sha256=" + hexSig
}

func TestVerifyHMACSignature(t *testing.T) {
	secret := "test-secret-key"
	body := []byte(`{"path":"com/acme/widget/1.2/widget-1.2.jar"}`)
	expectedSig := computeExpectedSignature(body, secret)

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		wantErr   bool
	}{
		{"valid signature - plain hex", body, expectedSig, secret, false},
		{"valid signature - GitHub format", body, formatGitHubSignature(expectedSig), secret, false},
		{"invalid signature - wrong signature", body, "0000000000000000000000000000000000000000000000000000000000000000", secret, true},
		{"invalid signature - tampered body", []byte(`{"path":"../../etc"}`), expectedSig, secret, true},
		{"invalid signature - wrong secret", body, expectedSig, "wrong-secret", true},
		{"invalid signature - empty signature", body, "", secret, true},
		{"invalid signature - empty secret", body, expectedSig, "", true},
		{"invalid signature - malformed hex", body, "not-valid-hex", secret, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyHMACSignature(tt.body, tt.signature, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("verifyHMACSignature() error = %v, wantErr %v", err, tt.wantErr)
			}

			// All errors should be generic (no information leakage)
			if err != nil && err.Error() != "webhook verification failed" {
				t.Errorf("error should be generic, got: %v", err)
			}
		})
	}
}

func TestParseSignature(t *testing.T) {
	const sig = "3a8f7b2c1d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a"
	tests := []struct {
		name      string
		signature string
		wantErr   bool
	}{
		{"GitHub format - sha256 prefix", "sha256=" + sig, false},
		{"plain hex", sig, false},
		{"invalid hex", "not-valid-hex", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSignature(tt.signature)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSignature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && hex.EncodeToString(got) != sig {
				t.Errorf("parseSignature() = %x, want %s", got, sig)
			}
		})
	}
}
