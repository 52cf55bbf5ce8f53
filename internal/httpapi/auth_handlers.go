package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"vacenf.org/internal/audit"
	"vacenf.org/internal/auth"
	"vacenf.org/internal/registry"
)

type loginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

type loginResponse struct {
	Token        string                `json:"token"`
	ExpiresAt    time.Time             `json:"expiresAt"`
	Profissional registry.Professional `json:"profissional"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Senha == "" {
		writeError(w, r, http.StatusBadRequest, "email e senha são obrigatórios")
		return
	}

	prof, err := a.registry.FindProfessionalByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "credenciais inválidas")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if !prof.Ativo {
		writeError(w, r, http.StatusForbidden, "conta desativada")
		return
	}
	if err := auth.VerifyPassword(prof.PasswordHash, req.Senha); err != nil {
		writeError(w, r, http.StatusUnauthorized, "credenciais inválidas")
		return
	}

	token, err := auth.GenerateToken(prof.ID, prof.Admin, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.setSessionCookie(w, token)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"profissional_id": prof.ID,
	})

	writeResult(w, http.StatusOK, loginResponse{
		Token:        token,
		ExpiresAt:    time.Now().UTC().Add(a.tokenTTL),
		Profissional: prof,
	})
}

// handleMe resolves the session token into the authenticated professional.
// This is the call the web client makes at startup before rendering anything.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	prof, err := a.registry.GetProfessional(r.Context(), principal.ProfessionalID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "profissional não encontrado")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if !prof.Ativo {
		writeError(w, r, http.StatusForbidden, "conta desativada")
		return
	}

	writeResult(w, http.StatusOK, prof)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.clearSessionCookie(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeResult(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.cookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: sessionSameSite,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: sessionSameSite,
	})
}
