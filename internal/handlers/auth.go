package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/bcrypt"

	"postforge/internal/middleware"
	"postforge/internal/session"
	"postforge/internal/studio"
)

// totpIssuer labels the account in authenticator apps.
const totpIssuer = "PostForge"

// Steps reported to the client after login and verification.
const (
	nextStudio   = "studio"
	next2FASetup = "2fa_setup"
	next2FACheck = "2fa_verify"
)

// Operator holds the single operator's credentials.
type Operator struct {
	Email        string
	PasswordHash string
	TOTPSecret   string
}

// Auth groups all authentication-related HTTP handlers.
type Auth struct {
	sessions *session.Store
	manager  *studio.Manager
	operator Operator
	dev      bool

	// enrolled is the first secret confirmed through setup when none is
	// configured. Later sessions must verify against it.
	mu       sync.Mutex
	enrolled string
}

// NewAuth creates a new Auth handler group. In development an operator
// without a password hash signs in with any password and skips 2FA.
func NewAuth(sessions *session.Store, manager *studio.Manager, op Operator, dev bool) *Auth {
	return &Auth{sessions: sessions, manager: manager, operator: op, dev: dev}
}

type authStep struct {
	Next string `json:"next"`
}

// Login checks the operator's credentials and starts a session.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if _, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	open := a.operator.PasswordHash == "" && a.dev
	if !strings.EqualFold(strings.TrimSpace(req.Email), a.operator.Email) || !(open || a.checkPassword(req.Password)) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	// A fresh session on every login; the previous one and its studio go.
	if old := middleware.SessionFromCtx(r.Context()); old != nil {
		if err := a.sessions.Destroy(r.Context(), w, r); err != nil {
			slog.Warn("destroy previous session failed", "error", err)
		}
		a.manager.Drop(old.ID)
	}

	data := &session.Data{Email: a.operator.Email, TwoFADone: open}
	if _, err := a.sessions.Create(r.Context(), w, data); err != nil {
		slog.Error("session create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch {
	case data.TwoFADone:
		writeJSON(w, http.StatusOK, authStep{Next: nextStudio})
	case a.secret() == "":
		writeJSON(w, http.StatusOK, authStep{Next: next2FASetup})
	default:
		writeJSON(w, http.StatusOK, authStep{Next: next2FACheck})
	}
}

// secret returns the TOTP secret codes are checked against, or "" while
// the operator has not enrolled.
func (a *Auth) secret() string {
	if a.operator.TOTPSecret != "" {
		return a.operator.TOTPSecret
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enrolled
}

// enroll binds secret as the operator's second factor. It fails when
// another session enrolled first.
func (a *Auth) enroll(secret string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enrolled != "" && a.enrolled != secret {
		return false
	}
	a.enrolled = secret
	return true
}

func (a *Auth) checkPassword(password string) bool {
	if a.operator.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.operator.PasswordHash), []byte(password)) == nil
}

// TwoFASetup generates a TOTP secret for an operator without one and
// returns it with a QR code. The secret is kept in the session until a
// valid code confirms it; once one is confirmed setup is closed.
func (a *Auth) TwoFASetup(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())
	if a.secret() != "" {
		writeError(w, http.StatusConflict, "two-factor authentication is already configured")
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: sess.Email,
	})
	if err != nil {
		slog.Error("totp generate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	qrPNG, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		slog.Error("qr code generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	sess.PendingTOTP = key.Secret()
	if err := a.sessions.Update(r.Context(), r, sess); err != nil {
		slog.Error("session update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"secret":  key.Secret(),
		"url":     key.URL(),
		"qr_code": base64.StdEncoding.EncodeToString(qrPNG),
	})
}

// TwoFAVerify validates a TOTP code and completes authentication.
func (a *Auth) TwoFAVerify(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())

	var req struct {
		Code string `json:"code"`
	}
	if _, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	secret, pending := a.secret(), false
	if secret == "" {
		secret, pending = sess.PendingTOTP, true
	}
	if secret == "" {
		writeError(w, http.StatusConflict, "two-factor setup required")
		return
	}

	if !totp.Validate(strings.TrimSpace(req.Code), secret) {
		writeError(w, http.StatusUnauthorized, "invalid code")
		return
	}
	if pending && !a.enroll(secret) {
		writeError(w, http.StatusConflict, "two-factor authentication is already configured")
		return
	}

	sess.TwoFADone = true
	sess.PendingTOTP = ""
	if err := a.sessions.Update(r.Context(), r, sess); err != nil {
		slog.Error("session update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, authStep{Next: nextStudio})
}

// Me reports the signed-in operator and the CSRF token the client echoes
// on state-changing requests.
func (a *Auth) Me(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"email":       sess.Email,
		"two_fa_done": sess.TwoFADone,
		"csrf_token":  middleware.CSRFTokenFromCtx(r.Context()),
	})
}

// Logout destroys the session and discards its studio state.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := middleware.SessionFromCtx(r.Context()); sess != nil {
		a.manager.Drop(sess.ID)
	}
	if err := a.sessions.Destroy(r.Context(), w, r); err != nil {
		slog.Error("session destroy failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
