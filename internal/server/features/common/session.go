package common

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"

	"github.com/leapstack-labs/bustracker/internal/sheets"
)

// SessionName is the cookie session holding the caller's OAuth token.
const SessionName = "bustracker"

const tokenKey = "oauth_token"

// NewSessionStore returns the cookie store used by the server.
func NewSessionStore(secret string) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.MaxAge(86400 * 30) // 30 days
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	return store
}

// SaveToken stores tok in the caller's session.
func SaveToken(w http.ResponseWriter, r *http.Request, store sessions.Store, tok *oauth2.Token) error {
	session, err := store.Get(r, SessionName)
	if err != nil && session == nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	session.Values[tokenKey] = string(data)
	return session.Save(r, w)
}

// LoadToken returns the OAuth token stored in the caller's session, if any.
func LoadToken(r *http.Request, store sessions.Store) (*oauth2.Token, bool) {
	session, err := store.Get(r, SessionName)
	if err != nil || session == nil {
		return nil, false
	}
	raw, ok := session.Values[tokenKey].(string)
	if !ok || raw == "" {
		return nil, false
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, false
	}
	return &tok, true
}

// Credentials resolves the credential for an HTTP request: the session's
// OAuth token when present, otherwise the fallback provider.
type Credentials struct {
	sessions sessions.Store
	fallback sheets.CredentialProvider
}

// NewCredentials creates a resolver. fallback may be nil.
func NewCredentials(store sessions.Store, fallback sheets.CredentialProvider) *Credentials {
	return &Credentials{sessions: store, fallback: fallback}
}

// Provider returns the CredentialProvider for r.
func (c *Credentials) Provider(r *http.Request) sheets.CredentialProvider {
	return sheets.CredentialFunc(func(ctx context.Context) (sheets.Credential, error) {
		if tok, ok := LoadToken(r, c.sessions); ok {
			cred := sheets.Credential{Subject: "session", Token: tok}
			if cred.Valid() {
				return cred, nil
			}
		}
		if c.fallback != nil {
			return c.fallback.CurrentCredential(ctx)
		}
		return sheets.Credential{}, fmt.Errorf("%w: sign in at /auth/google first", sheets.ErrNoCredential)
	})
}

// ForRequest resolves the credential for r.
func (c *Credentials) ForRequest(r *http.Request) (sheets.Credential, error) {
	return c.Provider(r).CurrentCredential(r.Context())
}
