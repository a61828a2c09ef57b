package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// cors allows any origin; preflight requests are answered here.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// tenantLimiter keeps one token bucket per tenant.
type tenantLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	byTenant map[string]*rate.Limiter
}

func newTenantLimiter(perSecond float64, burst int) *tenantLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &tenantLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		byTenant: make(map[string]*rate.Limiter),
	}
}

func (l *tenantLimiter) Allow(tenantID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.byTenant[tenantID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byTenant[tenantID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
