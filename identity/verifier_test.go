package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-social-auth/core"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

type signingKey struct {
	private jwk.Key
	public  jwk.Set
}

func newSigningKey(t *testing.T, kid string) signingKey {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("jwk from raw: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("set alg: %v", err)
	}
	public, err := jwk.PublicKeyOf(key)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(public); err != nil {
		t.Fatalf("add key: %v", err)
	}
	return signingKey{private: key, public: set}
}

func (k signingKey) sign(t *testing.T, issuer, audience, subject string, expires time.Time) string {
	t.Helper()
	token, err := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{audience}).
		Subject(subject).
		IssuedAt(time.Now().Add(-time.Minute)).
		Expiration(expires).
		Claim("email", subject+"@example.com").
		Claim("email_verified", true).
		Claim("name", "Signed User").
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, k.private))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

func TestJWKSVerifier_StaticKeySet(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	verifier, err := NewJWKSVerifier(context.Background(), map[string]JWKSProvider{
		"acme": {KeySet: key.public, Issuer: "https://id.acme.test", Audience: "client-1"},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	claims, err := verifier.Verify(context.Background(), "ACME", key.sign(t, "https://id.acme.test", "client-1", "sub-1", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims["sub"] != "sub-1" || claims["email"] != "sub-1@example.com" {
		t.Fatalf("unexpected claims: %v", claims)
	}
	if !verifier.Handles("acme") || verifier.Handles("other") {
		t.Fatalf("unexpected handles result")
	}
}

func TestJWKSVerifier_Rejections(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	stranger := newSigningKey(t, "kid-1")
	verifier, err := NewJWKSVerifier(context.Background(), map[string]JWKSProvider{
		"acme": {KeySet: key.public, Issuer: "https://id.acme.test", Audience: "client-1"},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{name: "expired", token: key.sign(t, "https://id.acme.test", "client-1", "sub", time.Now().Add(-time.Hour))},
		{name: "wrong issuer", token: key.sign(t, "https://evil.test", "client-1", "sub", time.Now().Add(time.Hour))},
		{name: "wrong audience", token: key.sign(t, "https://id.acme.test", "client-2", "sub", time.Now().Add(time.Hour))},
		{name: "foreign signature", token: stranger.sign(t, "https://id.acme.test", "client-1", "sub", time.Now().Add(time.Hour))},
		{name: "unsigned", token: unsignedJWT(map[string]any{"sub": "sub", "iss": "https://id.acme.test"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := verifier.Verify(context.Background(), "acme", tc.token); err == nil {
				t.Fatalf("expected verification to fail")
			}
		})
	}

	if _, err := verifier.Verify(context.Background(), "other", "x.y.z"); err == nil {
		t.Fatalf("expected unknown provider to fail")
	}
}

func TestJWKSVerifier_RemoteKeySet(t *testing.T) {
	key := newSigningKey(t, "kid-remote")
	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(key.public)
	}))
	defer jwks.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	verifier, err := NewJWKSVerifier(ctx, map[string]JWKSProvider{
		"acme": {JWKSURL: jwks.URL, Issuer: "https://id.acme.test"},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	claims, err := verifier.Verify(ctx, "acme", key.sign(t, "https://id.acme.test", "client-1", "remote-sub", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("verify with remote key set: %v", err)
	}
	if claims["sub"] != "remote-sub" {
		t.Fatalf("unexpected subject: %v", claims["sub"])
	}
}

func TestNewJWKSVerifier_RequiresKeySource(t *testing.T) {
	if _, err := NewJWKSVerifier(context.Background(), map[string]JWKSProvider{"acme": {}}); err == nil {
		t.Fatalf("expected missing key source to fail")
	}
}

func TestClient_FetchProfile_VerifiedIDToken(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	verifier, err := NewJWKSVerifier(context.Background(), map[string]JWKSProvider{
		"acme": {KeySet: key.public, Issuer: "https://id.acme.test", Audience: "client-1"},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	fake := newFakeProviderServer(t)
	fake.idToken = key.sign(t, "https://id.acme.test", "client-1", "verified-sub", time.Now().Add(time.Hour))
	settings := fake.settings()
	settings.RequireVerifiedEmail = true
	client := newTestClient(t, fake, "acme", settings, verifier)

	profile, err := client.FetchProfile(context.Background(), core.ProviderConfig{Slug: "acme"}, core.CallbackParams{Code: "good-code"})
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if profile.ExternalID != "verified-sub" || profile.Email != "verified-sub@example.com" || profile.DisplayName != "Signed User" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestClient_FetchProfile_ForgedIDTokenFallsBackToUserInfo(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	stranger := newSigningKey(t, "kid-1")
	verifier, err := NewJWKSVerifier(context.Background(), map[string]JWKSProvider{
		"acme": {KeySet: key.public, Issuer: "https://id.acme.test"},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	fake := newFakeProviderServer(t)
	fake.idToken = stranger.sign(t, "https://id.acme.test", "client-1", "forged-sub", time.Now().Add(time.Hour))
	fake.userInfo = map[string]any{"sub": "userinfo-sub"}
	client := newTestClient(t, fake, "acme", fake.settings(), verifier)

	profile, err := client.FetchProfile(context.Background(), core.ProviderConfig{Slug: "acme"}, core.CallbackParams{Code: "good-code"})
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if profile.ExternalID != "userinfo-sub" {
		t.Fatalf("expected forged token to be ignored, got %+v", profile)
	}
}
