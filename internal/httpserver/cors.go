package httpserver

import (
	"net/http"
	"strings"

	"github.com/fdg312/meal-tracker/internal/auth"
	"github.com/fdg312/meal-tracker/internal/config"
)

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ",")
	corsHeaders = strings.Join([]string{"Authorization", "Content-Type", auth.ProfileHeader}, ",")
	// имя файла выгрузки и шаблона читается из Content-Disposition
	corsExposed = "Content-Disposition,Retry-After"
)

// CORSMiddleware adds CORS headers for configured origins.
// "*" in CORS_ALLOWED_ORIGINS allows any origin unless credentials are enabled.
func CORSMiddleware(cfg *config.Config, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(cfg.CORSAllowedOrigins))
	anyOrigin := false
	for _, o := range cfg.CORSAllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" && !cfg.CORSAllowCredentials {
			anyOrigin = true
			continue
		}
		allowed[o] = true
	}

	isAllowed := func(origin string) bool {
		return origin != "" && (anyOrigin || allowed[origin])
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		h := w.Header()

		if isAllowed(origin) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", corsExposed)
			if cfg.CORSAllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == http.MethodOptions && origin != "" {
			// чужой origin получает пустой 204, браузер сам заблокирует запрос
			if isAllowed(origin) {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", "600")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
