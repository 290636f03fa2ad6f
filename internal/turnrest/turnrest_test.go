package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func fixedGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(GeneratorConfig{
		SharedSecret: "turn-shared-secret",
		TTL:          time.Hour,
		Prefix:       "medconnect",
		Now:          func() time.Time { return time.Unix(1700000000, 0) },
		RandomID:     func() (string, error) { return "deadbeef", nil },
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func TestGeneratecoturnCompatible(t *testing.T) {
	g := fixedGenerator(t)

	creds, err := g.Generate("visit-7")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	wantUsername := "1700003600:medconnect:visit-7"
	if creds.Username != wantUsername {
		t.Fatalf("username = %q, want %q", creds.Username, wantUsername)
	}
	if creds.ExpiryUnix != 1700003600 {
		t.Fatalf("expiry = %d, want 1700003600", creds.ExpiryUnix)
	}

	mac := hmac.New(sha1.New, []byte("turn-shared-secret"))
	mac.Write([]byte(wantUsername))
	if want := base64.StdEncoding.EncodeToString(mac.Sum(nil)); creds.Credential != want {
		t.Fatalf("credential = %q, want %q", creds.Credential, want)
	}
}

func TestGenerateRandomUsesIDSource(t *testing.T) {
	g := fixedGenerator(t)

	creds, err := g.GenerateRandom()
	if err != nil {
		t.Fatalf("GenerateRandom: %v", err)
	}
	if !strings.HasSuffix(creds.Username, ":deadbeef") {
		t.Fatalf("username = %q, want deadbeef id suffix", creds.Username)
	}
}

func TestGenerateRejectsColonID(t *testing.T) {
	g := fixedGenerator(t)
	if _, err := g.Generate("a:b"); err == nil {
		t.Fatal("Generate accepted an id containing ':'")
	}
	if _, err := g.Generate(""); err == nil {
		t.Fatal("Generate accepted an empty id")
	}
}

func TestNewGeneratorValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  GeneratorConfig
	}{
		{"missing secret", GeneratorConfig{TTL: time.Hour, Prefix: "p"}},
		{"zero ttl", GeneratorConfig{SharedSecret: "s", Prefix: "p"}},
		{"missing prefix", GeneratorConfig{SharedSecret: "s", TTL: time.Hour}},
		{"colon in prefix", GeneratorConfig{SharedSecret: "s", TTL: time.Hour, Prefix: "a:b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGenerator(tt.cfg); err == nil {
				t.Fatal("NewGenerator accepted invalid config")
			}
		})
	}
}
