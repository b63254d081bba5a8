package interceptors

import (
	"context"
	"net/http"
)

type contextKey string

const EnvKey contextKey = "env"

// EnvMiddleware stores the deployment env in the request context
func EnvMiddleware(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), EnvKey, env)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EnvFromContext returns the env set by EnvMiddleware, empty if none.
func EnvFromContext(ctx context.Context) string {
	env, _ := ctx.Value(EnvKey).(string)
	return env
}
