package fanout

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostRateLimiter keeps one token bucket per URL host.
type HostRateLimiter struct {
	mutex    sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
}

func NewHostRateLimiter(perSecond float64) *HostRateLimiter {
	return &HostRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
	}
}

// Wait blocks until a request to the host of rawURL is allowed or ctx is done.
func (h *HostRateLimiter) Wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return &url.Error{Op: "parse", URL: rawURL, Err: errors.New("missing host in URL")}
	}

	return h.limiterFor(u.Host).Wait(ctx)
}

func (h *HostRateLimiter) limiterFor(host string) *rate.Limiter {
	h.mutex.RLock()
	limiter, ok := h.limiters[host]
	h.mutex.RUnlock()
	if ok {
		return limiter
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if limiter, ok := h.limiters[host]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(h.limit, 1)
	h.limiters[host] = limiter

	return limiter
}
