package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testSecret = "jwt-unit-test-secret"

func mintToken(t *testing.T, secret, headerJSON, claimsJSON string) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(headerJSON))
	payload := enc.EncodeToString([]byte(claimsJSON))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(header + "." + payload))
	return header + "." + payload + "." + enc.EncodeToString(mac.Sum(nil))
}

func testVerifier(at time.Time) JWTVerifier {
	v := NewJWTVerifier(testSecret)
	v.now = func() time.Time { return at }
	return v
}

func TestJWTVerifyValid(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := testVerifier(now)

	token := mintToken(t, testSecret,
		`{"alg":"HS256","typ":"JWT"}`,
		fmt.Sprintf(`{"sub":"clinician-7","iat":%d,"exp":%d}`, now.Unix(), now.Unix()+300))

	subject, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "clinician-7" {
		t.Fatalf("subject = %q, want clinician-7", subject)
	}
}

func TestJWTVerifyWithoutSub(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := testVerifier(now)

	token := mintToken(t, testSecret,
		`{"alg":"HS256"}`,
		fmt.Sprintf(`{"iat":%d,"exp":%d}`, now.Unix(), now.Unix()+300))

	subject, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "" {
		t.Fatalf("subject = %q, want empty", subject)
	}
}

func TestJWTVerifyNbf(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := testVerifier(now)

	claims := func(nbf int64) string {
		return fmt.Sprintf(`{"iat":%d,"nbf":%d,"exp":%d}`, now.Unix(), nbf, now.Unix()+300)
	}

	if _, err := v.Verify(mintToken(t, testSecret, `{"alg":"HS256"}`, claims(now.Unix()-10))); err != nil {
		t.Fatalf("Verify with past nbf: %v", err)
	}
	if _, err := v.Verify(mintToken(t, testSecret, `{"alg":"HS256"}`, claims(now.Unix()+10))); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Verify with future nbf = %v, want ErrInvalidCredentials", err)
	}
}

func TestJWTVerifyRejections(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := testVerifier(now)

	valid := fmt.Sprintf(`{"sub":"s","iat":%d,"exp":%d}`, now.Unix(), now.Unix()+300)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:    "empty",
			token:   "",
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "two parts",
			token:   "aaaa.bbbb",
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "four parts",
			token:   mintToken(t, testSecret, `{"alg":"HS256"}`, valid) + ".extra",
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "wrong secret",
			token:   mintToken(t, "other-secret", `{"alg":"HS256"}`, valid),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "alg none",
			token:   mintToken(t, testSecret, `{"alg":"none"}`, valid),
			wantErr: ErrUnsupportedJWT,
		},
		{
			name:    "alg RS256",
			token:   mintToken(t, testSecret, `{"alg":"RS256"}`, valid),
			wantErr: ErrUnsupportedJWT,
		},
		{
			name:    "missing alg",
			token:   mintToken(t, testSecret, `{"typ":"JWT"}`, valid),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "expired",
			token:   mintToken(t, testSecret, `{"alg":"HS256"}`, fmt.Sprintf(`{"iat":%d,"exp":%d}`, now.Unix()-600, now.Unix()-300)),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "missing exp",
			token:   mintToken(t, testSecret, `{"alg":"HS256"}`, fmt.Sprintf(`{"iat":%d}`, now.Unix())),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "missing iat",
			token:   mintToken(t, testSecret, `{"alg":"HS256"}`, fmt.Sprintf(`{"exp":%d}`, now.Unix()+300)),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "non-numeric exp",
			token:   mintToken(t, testSecret, `{"alg":"HS256"}`, fmt.Sprintf(`{"iat":%d,"exp":"soon"}`, now.Unix())),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "non-string sub",
			token:   mintToken(t, testSecret, `{"alg":"HS256"}`, fmt.Sprintf(`{"sub":7,"iat":%d,"exp":%d}`, now.Unix(), now.Unix()+300)),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "payload not an object",
			token:   mintToken(t, testSecret, `{"alg":"HS256"}`, `[1,2,3]`),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "padded base64",
			token:   "eyJhbGciOiJIUzI1NiJ9==.eyJleHAiOjF9.AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
			wantErr: ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJWTExpiryBoundary(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := testVerifier(now)

	// exp == now counts as expired.
	token := mintToken(t, testSecret, `{"alg":"HS256"}`,
		fmt.Sprintf(`{"iat":%d,"exp":%d}`, now.Unix()-10, now.Unix()))
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Verify at exact expiry = %v, want ErrInvalidCredentials", err)
	}
}
