package interceptors

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// NewLoggingInterceptor logs every unary call with its duration and code.
func NewLoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			attrs := []any{
				slog.String("procedure", req.Spec().Procedure),
				slog.Duration("duration", time.Since(start)),
			}
			if tenant, ok := GetTenantIDFromContext(ctx); ok {
				attrs = append(attrs, slog.String("tenant_id", tenant))
			}
			if err != nil {
				attrs = append(attrs, slog.String("code", connect.CodeOf(err).String()), slog.Any("error", err))
				logger.Warn("rpc failed", attrs...)
				return res, err
			}
			logger.Info("rpc", attrs...)
			return res, nil
		}
	}
}
