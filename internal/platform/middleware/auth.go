package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "charter/pkg/domain"
	"charter/pkg/requestcontext"
)

// ActorClaims is the token payload resolved by the external identity
// provider: subject plus the capability set computed upstream. The core
// never queries role tables itself.
type ActorClaims struct {
	Capabilities []string `json:"capabilities"`
	jwt.RegisteredClaims
}

// Validator validates bearer tokens and resolves them to actors.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ResolveActor parses and validates a token, returning the resolved actor.
// Unknown capability strings are dropped rather than rejected so capability
// rollout upstream does not break older services.
func (v *Validator) ResolveActor(tokenString string) (id.Actor, error) {
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return id.Actor{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return id.Actor{}, fmt.Errorf("token missing subject")
	}

	var caps []id.Capability
	for _, raw := range claims.Capabilities {
		c, err := id.ParseCapability(raw)
		if err != nil {
			continue
		}
		caps = append(caps, c)
	}
	return id.NewActor(id.ActorID(claims.Subject), caps...), nil
}

// RequireAuth rejects requests without a valid bearer token and places the
// resolved actor in the request context.
func RequireAuth(validator *Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			actor, err := validator.ResolveActor(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.WarnContext(r.Context(), "token validation failed",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err,
				)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := requestcontext.WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
