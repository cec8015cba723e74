package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const testOAuthClient = `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestOAuthConfig_Enabled(t *testing.T) {
	if (OAuthConfig{}).Enabled() {
		t.Error("empty config should be disabled")
	}
	if !(OAuthConfig{ClientFile: "client.json"}).Enabled() {
		t.Error("client file should enable OAuth")
	}
	if (OAuthConfig{TokenJSON: `{"access_token":"x"}`}).Enabled() {
		t.Error("a token alone should not enable OAuth")
	}
}

func TestOAuthConfig_ClientConfig(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := OAuthConfig{}.ClientConfig()
		if err == nil || err.Error() != "missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)" {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := OAuthConfig{ClientJSON: "invalid-json"}.ClientConfig()
		if err == nil || !strings.Contains(err.Error(), "oauth config") {
			t.Fatalf("expected oauth config error, got: %v", err)
		}
	})

	t.Run("valid", func(t *testing.T) {
		cfg, err := OAuthConfig{ClientJSON: testOAuthClient}.ClientConfig()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.ClientID != "test" || len(cfg.Scopes) != 1 {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})
}

func TestOAuthConfig_Token(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := OAuthConfig{ClientJSON: testOAuthClient}.Token()
		if err == nil || err.Error() != "missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)" {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("inline", func(t *testing.T) {
		tok, err := OAuthConfig{TokenJSON: `{"access_token":"test"}`}.Token()
		if err != nil {
			t.Fatal(err)
		}
		if tok.AccessToken != "test" {
			t.Errorf("expected access token 'test', got %s", tok.AccessToken)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := OAuthConfig{TokenJSON: `{"access_token":`}.Token()
		if err == nil || !strings.Contains(err.Error(), "parse oauth token") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestSaveTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	want := &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := SaveToken(path, want); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := OAuthConfig{TokenFile: path}.Token()
	if err != nil {
		t.Fatal(err)
	}
	if got.RefreshToken != "r" || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("token mismatch: %+v", got)
	}
}

func TestNew_OAuthTakesPrecedence(t *testing.T) {
	_, err := New(context.Background(), Config{
		SpreadsheetID:   "sheet",
		CredentialsJSON: "{}",
		OAuth:           OAuthConfig{ClientJSON: testOAuthClient},
	})
	if err == nil || !strings.Contains(err.Error(), "oauth token") {
		t.Fatalf("expected oauth token error, got: %v", err)
	}
}
