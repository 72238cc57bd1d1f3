package auth

import (
	"net/http"
	"strings"

	"github.com/fdg312/meal-tracker/internal/config"
	"github.com/fdg312/meal-tracker/internal/userctx"
	"github.com/google/uuid"
)

// ProfileHeader выбирает профиль без токена при AUTH_MODE=none.
const ProfileHeader = "X-Profile-ID"

// Middleware — middleware для проверки авторизации
type Middleware struct {
	config  *config.Config
	service *Service
}

func NewMiddleware(cfg *config.Config, service *Service) *Middleware {
	return &Middleware{
		config:  cfg,
		service: service,
	}
}

// Identify кладёт личность в контекст, если она предъявлена.
// Запросы без токена проходят дальше; роль проверяют RequireAdmin/RequireMember.
func (m *Middleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if authHeader != "" {
			identity, err := m.authenticateHeader(authHeader)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(userctx.WithIdentity(r.Context(), identity.Subject, identity.Role)))
			return
		}

		if m.config.AuthMode == config.AuthModeNone {
			if raw := strings.TrimSpace(r.Header.Get(ProfileHeader)); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_profile", "Invalid "+ProfileHeader+" header")
					return
				}
				next.ServeHTTP(w, r.WithContext(userctx.WithIdentity(r.Context(), id.String(), userctx.RoleMember)))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin пропускает только admin-токены.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return requireRole(userctx.RoleAdmin, next)
}

// RequireMember пропускает только выбранный профиль.
func (m *Middleware) RequireMember(next http.Handler) http.Handler {
	return requireRole(userctx.RoleMember, next)
}

func requireRole(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := userctx.GetRole(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}
		if got != role {
			writeError(w, http.StatusForbidden, "forbidden", "Insufficient role")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) authenticateHeader(authHeader string) (Identity, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return Identity{}, ErrInvalidToken
	}
	return m.service.VerifyJWT(strings.TrimSpace(parts[1]))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}
