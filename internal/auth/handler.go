// internal/auth/handler.go
//
// Authentication endpoints.
//
// Context
// -------
//
//	POST /auth/login    {email, password} → access token + refresh pair
//	POST /auth/refresh  rotates the presented refresh token
//	POST /auth/logout   revokes every outstanding refresh token
//	GET  /auth/me       echoes the authenticated principal
//
// Refresh transport is mode-switched, never both at once: in cookie mode
// the refresh token travels as an HttpOnly cookie guarded by a CSRF
// double-submit cookie; in legacy mode it travels in the JSON body.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/yanizio/tabula/internal/audit"
	"github.com/yanizio/tabula/internal/respond"
	"github.com/yanizio/tabula/internal/token"
)

// Cookie and header names for cookie-mode refresh.
const (
	RefreshCookie = "tabula_refresh"
	CSRFCookie    = "tabula_csrf"
	CSRFHeader    = "X-CSRF-Token"
)

// Handler serves the auth endpoints.
type Handler struct {
	store      *Store
	manager    *Manager
	tokens     *token.Service
	cookieMode bool
	refreshTTL time.Duration
}

// NewHandler wires the auth surface.
func NewHandler(store *Store, manager *Manager, tokens *token.Service, cookieMode bool, refreshTTL time.Duration) *Handler {
	return &Handler{
		store:      store,
		manager:    manager,
		tokens:     tokens,
		cookieMode: cookieMode,
		refreshTTL: refreshTTL,
	}
}

// Routes returns the /auth router.  Login and refresh are the brute-force
// targets, so only those two sit behind the supplied rate-limit middleware;
// logout and me stay unthrottled.  A nil limit disables throttling.
func (h *Handler) Routes(limit func(http.Handler) http.Handler) chi.Router {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	r := chi.NewRouter()
	r.With(limit).Post("/login", h.login)
	r.With(limit).Post("/refresh", h.refresh)
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"` // legacy mode only
	User         userView `json:"user"`
	Permissions  []string `json:"permissions"`
}

type userView struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Type  string `json:"type"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		respond.Err(w, respond.New(respond.KindValidation, "email and password are required"))
		return
	}

	u, err := h.store.UserByEmail(r.Context(), req.Email)
	if err == ErrNoUser {
		respond.Err(w, respond.New(respond.KindAuth, "invalid credentials"))
		return
	}
	if err != nil {
		respond.Err(w, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		respond.Err(w, respond.New(respond.KindAuth, "invalid credentials"))
		return
	}

	h.issueSession(w, r, u, "login")
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	plain, err := h.presentedToken(r)
	if err != nil {
		respond.Err(w, err)
		return
	}

	rec, status, err := h.tokens.Validate(r.Context(), plain)
	if err != nil {
		respond.Err(w, err)
		return
	}
	if status != token.StatusValid {
		if status == token.StatusReuse {
			actor := rec.UserID
			audit.Set(r.Context(), &audit.Payload{
				ActorID: &actor,
				Action:  "token_reuse",
				Table:   "refresh_tokens",
				RecordKey: rec.ID,
			})
		}
		respond.Err(w, &respond.Error{
			Kind:    respond.KindAuth,
			Message: "refresh token rejected",
			Details: map[string]string{"classification": status.String()},
		})
		return
	}

	u, err := h.store.UserByID(r.Context(), rec.UserID)
	if err != nil {
		respond.Err(w, respond.Wrap(respond.KindAuth, err, "account no longer active"))
		return
	}

	newPlain, _, err := h.tokens.Rotate(r.Context(), rec)
	if err != nil {
		respond.Err(w, err)
		return
	}
	h.respondSession(w, r, u, newPlain)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	p := FromContext(r.Context())
	if p == nil {
		respond.Err(w, respond.New(respond.KindAuth, "authentication required"))
		return
	}

	n, err := h.tokens.RevokeAll(r.Context(), p.ID)
	if err != nil {
		respond.Err(w, err)
		return
	}
	zap.S().Infow("logout revoked sessions", "user_id", p.ID, "count", n)

	if h.cookieMode {
		clearCookie(w, RefreshCookie, "/auth")
		clearCookie(w, CSRFCookie, "/")
	}
	audit.Set(r.Context(), &audit.Payload{
		Action: "logout", Table: "refresh_tokens",
	})
	respond.JSON(w, http.StatusOK, map[string]any{"revoked": n})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p := FromContext(r.Context())
	if p == nil {
		respond.Err(w, respond.New(respond.KindAuth, "authentication required"))
		return
	}
	respond.JSON(w, http.StatusOK, sessionResponse{
		User:        userView{ID: p.ID, Email: p.Email, Type: p.Type},
		Permissions: p.Permissions,
	})
}

/*──────────────────────────── session plumbing ────────────────────────────*/

// issueSession mints the first refresh token in a chain plus an access
// token, records the audit action, and writes the session response.
func (h *Handler) issueSession(w http.ResponseWriter, r *http.Request, u *User, action string) {
	plain, _, err := h.tokens.Issue(r.Context(), u.ID)
	if err != nil {
		respond.Err(w, err)
		return
	}
	actor := u.ID
	audit.Set(r.Context(), &audit.Payload{
		ActorID: &actor, Action: action, Table: "users",
	})
	h.respondSession(w, r, u, plain)
}

func (h *Handler) respondSession(w http.ResponseWriter, r *http.Request, u *User, refreshPlain string) {
	perms, err := h.store.Permissions(r.Context(), u.ID)
	if err != nil {
		respond.Err(w, err)
		return
	}

	p := &Principal{ID: u.ID, Email: u.Email, Type: u.Type, Permissions: perms}
	access, err := h.manager.Sign(p)
	if err != nil {
		respond.Err(w, err)
		return
	}

	resp := sessionResponse{
		AccessToken: access,
		User:        userView{ID: u.ID, Email: u.Email, Type: u.Type},
		Permissions: perms,
	}

	if h.cookieMode {
		h.setRefreshCookies(w, r, refreshPlain)
	} else {
		resp.RefreshToken = refreshPlain
	}
	respond.JSON(w, http.StatusOK, resp)
}

// presentedToken extracts the refresh token per transport mode.  Cookie
// mode additionally enforces the CSRF double-submit pair; legacy mode
// reads the body field.  The other channel is ignored entirely.
func (h *Handler) presentedToken(r *http.Request) (string, error) {
	if h.cookieMode {
		c, err := r.Cookie(RefreshCookie)
		if err != nil || c.Value == "" {
			return "", respond.New(respond.KindAuth, "missing refresh cookie")
		}
		csrf, err := r.Cookie(CSRFCookie)
		if err != nil || csrf.Value == "" {
			return "", respond.New(respond.KindAuth, "missing CSRF cookie")
		}
		header := r.Header.Get(CSRFHeader)
		if subtle.ConstantTimeCompare([]byte(header), []byte(csrf.Value)) != 1 {
			return "", respond.New(respond.KindForbidden, "CSRF token mismatch")
		}
		return c.Value, nil
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		return "", respond.New(respond.KindValidation, "refreshToken is required")
	}
	return body.RefreshToken, nil
}

func (h *Handler) setRefreshCookies(w http.ResponseWriter, r *http.Request, refreshPlain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    refreshPlain,
		Path:     "/auth",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(h.refreshTTL),
	})

	// Double-submit partner: readable by the client, echoed back in the
	// CSRF header on /auth/refresh.
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    hex.EncodeToString(buf),
		Path:     "/",
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(h.refreshTTL),
	})
}

func clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name: name, Value: "", Path: path, MaxAge: -1, HttpOnly: name == RefreshCookie,
	})
}
