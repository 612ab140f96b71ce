package auth

import (
	"crypto/subtle"
	"net/http"

	resp "github.com/zllovesuki/adbill/response"
	"go.uber.org/zap"
)

// SchedulerSecret returns a http middleware comparing the Bearer token with the configured secret
func (a *Auth) SchedulerSecret() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(a.secret) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := bearer(r)
			if !ok {
				resp.WriteError(w, r, resp.ErrNoBearer())
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), a.secret) != 1 {
				a.Logger.Warn("Scheduler secret mismatch",
					zap.String("RemoteAddr", r.RemoteAddr),
				)
				resp.WriteError(w, r, resp.ErrInvalidSecret())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
