package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/princekumarofficial/gallery-service/internal/ratelimit"
	"github.com/princekumarofficial/gallery-service/internal/utils/response"
)

// KeyFunc picks the rate limit key of a request
type KeyFunc func(r *http.Request) string

// ParseTrustedProxies reads CIDRs or bare addresses of the proxies allowed to set
// X-Forwarded-For
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// ClientIP keys requests by peer address. Forwarding headers are only read when the
// peer is a trusted proxy, and then the right-most hop that is not a trusted proxy wins.
func ClientIP(trusted []netip.Prefix) KeyFunc {
	isTrusted := func(addr netip.Addr) bool {
		for _, prefix := range trusted {
			if prefix.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		peer, err := netip.ParseAddr(host)
		if err != nil || !isTrusted(peer.Unmap()) {
			return host
		}

		if hops := r.Header.Values("X-Forwarded-For"); len(hops) > 0 {
			parts := strings.Split(strings.Join(hops, ","), ",")
			for i := len(parts) - 1; i >= 0; i-- {
				addr, err := netip.ParseAddr(strings.TrimSpace(parts[i]))
				if err != nil {
					// a malformed hop was not written by a trusted proxy
					return host
				}
				addr = addr.Unmap()
				if !isTrusted(addr) {
					return addr.String()
				}
			}
			return host
		}

		if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			return addr.Unmap().String()
		}
		return host
	}
}

// RateLimitMiddleware admits requests through limiter before any other work is done.
// Denied requests get 429 and never reach next. The consumed key is stored in the
// request context so later stages can refund it.
func RateLimitMiddleware(limiter *ratelimit.Limiter, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)

			decision, err := limiter.Admit(r.Context(), key)
			if err != nil {
				slog.Error("Rate limit check failed", slog.String("key", key), slog.String("error", err.Error()))
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(
					errors.New("rate limit check failed")))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

			if !decision.Allowed {
				retryAfter := int64(math.Ceil(decision.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))

				slog.Debug("Request rate limited", slog.String("key", key))
				response.WriteJSON(w, http.StatusTooManyRequests, response.GeneralError(ratelimit.ErrLimited))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAdmissionKey(r.Context(), key)))
		})
	}
}

// WithAdmissionKey records the rate limit key charged for this request
func WithAdmissionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, AdmissionKeyKey, key)
}

// GetAdmissionKeyFromContext returns the key charged by RateLimitMiddleware
func GetAdmissionKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(AdmissionKeyKey).(string)
	return key, ok
}
