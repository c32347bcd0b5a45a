package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ehs-handlers/internal/logger"
)

const (
	requestIDMetadataKey = "x-request-id"
	actorIDMetadataKey   = "x-user-id"
)

// UnaryServerInterceptor propagates the caller's x-request-id metadata (or a
// fresh id) and x-user-id onto the context and logs each call.
func UnaryServerInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(requestIDMetadataKey); len(v) > 0 {
				id = v[0]
			}
			if v := md.Get(actorIDMetadataKey); len(v) > 0 && v[0] != "" {
				ctx = logger.WithActorID(ctx, v[0])
			}
		}
		if id == "" {
			id = uuid.New().String()
		}
		ctx = logger.WithRequestID(ctx, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, id))

		resp, err := handler(ctx, req)

		evt := log.Debug()
		if err != nil {
			evt = log.Warn().Err(err)
		}
		evt.
			Str("request_id", id).
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")
		return resp, err
	}
}
