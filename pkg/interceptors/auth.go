// Package interceptors holds the Connect interceptors shared by all services.
package interceptors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	tenantIDKey contextKey = "tenant_id"
)

// Claims are the JWT claims the API accepts. The subject is the user id and
// tid names the tenant the user is acting for.
type Claims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// GetUserIDFromContext returns the authenticated user id.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetTenantIDFromContext returns the tenant the caller is acting for.
func GetTenantIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tenantIDKey).(string)
	return v, ok
}

// WithIdentity stores a user and tenant in ctx. Used by the auth interceptor
// and by callers that run the service without HTTP, such as the CLI.
func WithIdentity(ctx context.Context, userID, tenantID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// NewAuthInterceptor verifies HS256 bearer tokens and stores the identity in
// the request context.
func NewAuthInterceptor(secret []byte, logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			claims, err := parseBearer(req.Header().Get("Authorization"), secret)
			if err != nil {
				logger.Debug("rejected request",
					slog.String("procedure", req.Spec().Procedure),
					slog.Any("error", err),
				)
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
			}
			return next(WithIdentity(ctx, claims.Subject, claims.TenantID), req)
		}
	}
}

func parseBearer(header string, secret []byte) (*Claims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, errors.New("missing bearer token")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return nil, errors.New("token lacks subject or tenant")
	}
	return claims, nil
}
