package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/iam"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PrincipalResponse represents the caller in API responses
type PrincipalResponse struct {
	Subject   string   `json:"subject"`
	Name      string   `json:"name"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles"`
	Transport string   `json:"transport"`
}

// LoginResponse represents the response from POST /auth/login
type LoginResponse struct {
	Principal PrincipalResponse `json:"principal"`
	ExpiresAt int64             `json:"expires_at"`
}

// MeResponse represents the response from GET /api/me
type MeResponse struct {
	Principal   PrincipalResponse `json:"principal"`
	PrimaryRole string            `json:"primary_role"`
	User        *UserResponse     `json:"user,omitempty"`
}

// UserResponse is a LocalUser as returned by the API.
type UserResponse struct {
	ID            string     `json:"id"`
	ExternalID    string     `json:"external_id"`
	Username      string     `json:"username"`
	FullName      string     `json:"full_name"`
	Email         string     `json:"email"`
	Active        bool       `json:"active"`
	EmailVerified bool       `json:"email_verified"`
	Role          string     `json:"role"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

func newPrincipalResponse(p *auth.Principal) PrincipalResponse {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return PrincipalResponse{
		Subject:   p.Subject,
		Name:      p.Name,
		Email:     p.Email,
		Roles:     roles,
		Transport: p.Transport,
	}
}

func newUserResponse(u *models.LocalUser) UserResponse {
	return UserResponse{
		ID:            u.ID,
		ExternalID:    u.ExternalID,
		Username:      u.Username,
		FullName:      u.FullName,
		Email:         u.Email,
		Active:        u.Active,
		EmailVerified: u.EmailVerified,
		Role:          u.Role,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
		LastLoginAt:   u.LastLoginAt,
	}
}

// HandleLogin exchanges username/password at the provider and opens a
// cookie session. Every failure is a bare 401 to the caller.
func HandleLogin(iamService iam.Service, cookieSecure bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Username == "" || req.Password == "" {
			http.Error(w, "missing username or password", http.StatusBadRequest)
			return
		}

		result, err := iamService.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			if !errors.Is(err, iam.ErrInvalidCredentials) {
				logger.Warn("login failed", zap.String("username", req.Username), zap.Error(err))
			}
			unauthorized(w)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     auth.SessionCookieName,
			Value:    result.Token,
			Path:     "/",
			Expires:  result.Session.ExpiresAt,
			HttpOnly: true,
			Secure:   cookieSecure,
			SameSite: http.SameSiteLaxMode,
		})

		writeJSON(w, http.StatusOK, LoginResponse{
			Principal: newPrincipalResponse(result.Principal),
			ExpiresAt: result.Session.ExpiresAt.UnixMilli(),
		})
	}
}

// HandleLogout revokes the caller's cookie session and clears the cookie.
func HandleLogout(iamService iam.Service, cookieSecure bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.GetCurrentPrincipal(r.Context())
		if !ok || principal.SessionID == "" {
			http.Error(w, "no active session", http.StatusUnauthorized)
			return
		}

		if err := iamService.Logout(r.Context(), principal.SessionID); err != nil {
			logger.Error("logout failed", zap.String("session_id", principal.SessionID), zap.Error(err))
			http.Error(w, "failed to revoke session", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     auth.SessionCookieName,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   cookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleMe returns the caller, its primary role and its synced local user.
func HandleMe(iamService iam.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, ok := auth.GetCurrentPrincipal(ctx)
		if !ok {
			unauthorized(w)
			return
		}

		resp := MeResponse{
			Principal:   newPrincipalResponse(principal),
			PrimaryRole: iamService.PrimaryRole(ctx, principal),
		}

		user, err := iamService.GetLocalUser(ctx, principal.Subject)
		switch {
		case err == nil:
			u := newUserResponse(user)
			resp.User = &u
		case errors.Is(err, repository.ErrNotFound):
			// Not synced yet.
		default:
			logger.Error("load local user", zap.String("subject", principal.Subject), zap.Error(err))
			http.Error(w, "failed to load user", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "unauthenticated", http.StatusUnauthorized)
}
