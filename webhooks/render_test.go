package webhooks

import (
	"strings"
	"testing"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	body := []byte(`{"sceneId":7,"version":1,"videoUrl":"https://cdn.example.com/out.mp4","status":"completed"}`)
	secret := "shared-secret"

	header := Sign(secret, body)
	if !strings.HasPrefix(header, "sha256=") {
		t.Fatalf("header = %q, want sha256= prefix", header)
	}
	if !VerifySignature(secret, body, header) {
		t.Error("valid signature rejected")
	}
}

func TestVerifySignatureRejections(t *testing.T) {
	body := []byte(`{"sceneId":7}`)
	secret := "shared-secret"
	valid := Sign(secret, body)

	cases := []struct {
		name   string
		secret string
		body   []byte
		header string
	}{
		{"missing header", secret, body, ""},
		{"missing secret", "", body, valid},
		{"wrong secret", "other-secret", body, valid},
		{"tampered body", secret, []byte(`{"sceneId":8}`), valid},
		{"no prefix", secret, body, strings.TrimPrefix(valid, "sha256=")},
		{"bad hex", secret, body, "sha256=not-hex!"},
		{"truncated", secret, body, valid[:len(valid)-4]},
	}

	for _, tc := range cases {
		if VerifySignature(tc.secret, tc.body, tc.header) {
			t.Errorf("%s: signature accepted, want rejection", tc.name)
		}
	}
}
