package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"

	"github.com/leapstack-labs/bustracker/internal/server/features/common"
)

const stateKey = "oauth_state"

// Handlers provides the OAuth handlers.
type Handlers struct {
	oauth        *oauth2.Config
	sessionStore sessions.Store
	logger       *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(oauth *oauth2.Config, sessionStore sessions.Store, logger *slog.Logger) *Handlers {
	return &Handlers{oauth: oauth, sessionStore: sessionStore, logger: logger}
}

// Start redirects to Google's consent page, asking for offline access so a
// refresh token is issued.
func (h *Handlers) Start(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil || h.oauth.ClientID == "" {
		common.WriteJSON(w, http.StatusServiceUnavailable, common.ErrorResponse{Error: "google sign-in is not configured"})
		return
	}

	state, err := newState()
	if err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}

	session, _ := h.sessionStore.Get(r, common.SessionName)
	session.Values[stateKey] = state
	if err := session.Save(r, w); err != nil {
		common.WriteError(w, r, h.logger, fmt.Errorf("failed to save session: %w", err))
		return
	}

	http.Redirect(w, r, h.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusFound)
}

// Callback exchanges the authorization code and stores the token in the
// session.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		common.WriteError(w, r, h.logger, fmt.Errorf("%w: missing authorization code", common.ErrBadRequest))
		return
	}

	session, _ := h.sessionStore.Get(r, common.SessionName)
	want, _ := session.Values[stateKey].(string)
	if want == "" || r.URL.Query().Get("state") != want {
		common.WriteError(w, r, h.logger, fmt.Errorf("%w: oauth state mismatch", common.ErrBadRequest))
		return
	}
	delete(session.Values, stateKey)

	tok, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("token exchange failed", slog.String("error", err.Error()))
		common.WriteJSON(w, http.StatusBadGateway, common.ErrorResponse{Error: "authentication failed"})
		return
	}

	if err := common.SaveToken(w, r, h.sessionStore, tok); err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}

	h.logger.Info("google sign-in complete")
	common.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Authentication successful! You can now close this window or proceed to the application.",
	})
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
