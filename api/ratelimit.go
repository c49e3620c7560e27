package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jmcleod/quill/ratelimit"
)

// loginKey identifies the client for login rate limiting.
func (a *API) loginKey(r *http.Request) string {
	return "login:" + ratelimit.ClientIP(r, a.trustedProxies)
}

// checkLoginLimit records one login attempt for the client. It reports
// false after writing a 429 when the client is over the limit. A limiter
// failure is treated as a rejection.
func (a *API) checkLoginLimit(w http.ResponseWriter, r *http.Request) bool {
	key := a.loginKey(r)
	res, err := a.limiter.Record(r.Context(), key)
	if err != nil {
		a.writeInternalError(w, r, "recording login attempt", err)
		return false
	}
	if res.Allowed {
		return true
	}
	a.audit.logFailure(AuditLoginRateLimited, r, "rate limited",
		slog.String("client", key), slog.Int("attempts", res.Count))
	writeRateLimited(w, res.RetryAfter, a.localizer(r).T("auth.rateLimited"))
	return false
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration, msg string) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, msg)
}

func retryAfterString(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
