package n14

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nil071n/N14/core"
)

type AuthHandler struct {
	sessions  *SessionRegistry
	wsManager *core.ConnManager
}

func NewAuthHandler(sessions *SessionRegistry, wsManager *core.ConnManager) *AuthHandler {
	return &AuthHandler{sessions: sessions, wsManager: wsManager}
}

type SigninPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) error {
	var payload core.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	cookie, session, err := h.sessions.Open(func(c *core.Client) error {
		return c.Register(r.Context(), payload)
	})
	if err != nil {
		return err
	}

	http.SetCookie(w, cookie)
	return writeJSON(w, http.StatusCreated, session)
}

func (h *AuthHandler) SigninHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SigninPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	cookie, session, err := h.sessions.Open(func(c *core.Client) error {
		return c.SignIn(r.Context(), payload.Username, payload.Password)
	})
	if err != nil {
		return err
	}

	http.SetCookie(w, cookie)
	return writeJSON(w, http.StatusOK, session)
}

// SignoutHandler leaves the chat: the user goes offline at once and the
// session's websocket connections are closed.
func (h *AuthHandler) SignoutHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	if err := h.sessions.Close(r.Context(), session.ID); err != nil {
		return err
	}
	h.wsManager.Disconnect(session.ID)

	http.SetCookie(w, expiredCookie())
	w.WriteHeader(http.StatusOK)
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}
