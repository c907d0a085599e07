package middleware

import (
	"errors"
	"net/http"

	"warimas-checkout/internal/auth"
	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/utils"

	"go.uber.org/zap"
)

// Auth resolves the caller from an HS256 access token. Requests without a
// token pass through as guests; a token that fails verification is rejected.
func Auth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseAccessToken(tokenStr, key)
			if err != nil {
				logger.FromCtx(r.Context()).Info("rejected access token", zap.Error(err))
				msg := auth.ErrInvalidToken.Error()
				if errors.Is(err, auth.ErrNoSubject) {
					msg = auth.ErrNoSubject.Error()
				}
				utils.WriteJSONError(w, msg, http.StatusUnauthorized)
				return
			}

			ctx := utils.WithIdentity(r.Context(), utils.Identity{
				UserID: claims.UserID,
				Email:  claims.Email,
				Role:   claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
