package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"leasebook/internal/logger"
	"leasebook/internal/tenantaccess"

	"github.com/go-chi/chi/v5"
)

type ctxKey string

const leaseGroupKey ctxKey = "tenant_lease_group"

// TenantLeaseGroup returns the lease group resolved from the tenant link.
func TenantLeaseGroup(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(leaseGroupKey).(string)
	return v, ok && v != ""
}

// WithTenantLeaseGroup is used by tests that bypass token checks.
func WithTenantLeaseGroup(ctx context.Context, leaseGroupID string) context.Context {
	return context.WithValue(ctx, leaseGroupKey, leaseGroupID)
}

// TenantToken resolves the {token} URL parameter into its lease group.
// Invalid links get 403 with the reason; valid ones are stamped as used.
func TenantToken(tokens *tenantaccess.Service, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := chi.URLParam(r, "token")
			v, err := tokens.Validate(r.Context(), token)
			if err != nil {
				logg.Error(r.Context(), "tenant.token_lookup_failed", err)
				http.Error(w, "server error", http.StatusInternalServerError)
				return
			}
			if !v.Valid {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(v)
				return
			}

			ctx := WithTenantLeaseGroup(r.Context(), v.LeaseGroupID)
			if logg != nil {
				ctx = logg.WithLeaseGroup(ctx, v.LeaseGroupID)
			}
			if err := tokens.Touch(ctx, token); err != nil {
				logg.Warn(ctx, "tenant.token_touch_failed")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
