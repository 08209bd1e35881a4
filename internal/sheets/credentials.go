package sheets

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes are the OAuth scopes the stores need: spreadsheet read/write,
// profile lookup and Drive file copies.
var Scopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/drive.file",
}

// Credential authorizes store calls on behalf of one user.
type Credential struct {
	// Subject identifies the credential holder in logs. It is never sent anywhere.
	Subject string
	Token   *oauth2.Token
}

// Valid reports whether the credential carries a token that can be used or refreshed.
func (c Credential) Valid() bool {
	return c.Token != nil && (c.Token.AccessToken != "" || c.Token.RefreshToken != "")
}

// CredentialProvider supplies the credential for the current unit of work.
// Providers never refresh or persist tokens on behalf of the core.
type CredentialProvider interface {
	CurrentCredential(ctx context.Context) (Credential, error)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context) (Credential, error)

// CurrentCredential calls f.
func (f CredentialFunc) CurrentCredential(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// OAuthConfig builds the OAuth2 client configuration for Google.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// StaticCredentials serves one long-lived credential, typically built from a
// refresh token in configuration. It is what the CLI uses.
type StaticCredentials struct {
	subject string
	token   *oauth2.Token
}

// NewStaticCredentials returns a provider for refreshToken. An empty token
// yields a provider that always fails with ErrNoCredential.
func NewStaticCredentials(subject, refreshToken string) *StaticCredentials {
	s := &StaticCredentials{subject: subject}
	if refreshToken != "" {
		s.token = &oauth2.Token{RefreshToken: refreshToken}
	}
	return s
}

// CurrentCredential returns the configured credential.
func (s *StaticCredentials) CurrentCredential(_ context.Context) (Credential, error) {
	cred := Credential{Subject: s.subject, Token: s.token}
	if !cred.Valid() {
		return Credential{}, fmt.Errorf("%w: no refresh token configured", ErrNoCredential)
	}
	return cred, nil
}
