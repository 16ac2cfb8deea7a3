package appMiddleware

import (
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// RateLimit throttles per authenticated user. Limiters live in a bounded
// expirable cache so an idle user's bucket eventually goes away.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	limiters := lru.NewLRU[int64, *rate.Limiter](4096, nil, 10*time.Minute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			limiter, ok := limiters.Get(userID)
			if !ok {
				limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
				limiters.Add(userID, limiter)
			}

			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limited"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
