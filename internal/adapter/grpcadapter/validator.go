// Package grpcadapter decorates another syncengine.Adapter with a
// gRPC-based ConnectionValidator, grounded on
// infra/client/di/module.go's "resilient client + lifecycle close"
// idiom and infra/server/grpc/interceptors/stream_auth.go's
// interceptor-chaining style, applied client-side via
// go-grpc-middleware/v2's retry interceptor.
package grpcadapter

import (
	"context"
	"fmt"
	"time"

	retryinterceptor "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/retry"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/webitel/im-sync-engine/internal/syncengine"
)

// Validator wraps a syncengine.Adapter and answers ValidateConnection
// by calling the remote's standard gRPC health service, so the
// coordinator's network observer can be corroborated by an
// application-level probe instead of a bare TCP dial.
type Validator struct {
	syncengine.Adapter
	health grpc_health_v1.HealthClient
	conn   *grpc.ClientConn
}

var _ syncengine.Adapter = (*Validator)(nil)
var _ syncengine.ConnectionValidator = (*Validator)(nil)

// Dial connects to target with a bounded-retry unary interceptor
// (grounded on the teacher's interceptor-chaining idiom) and wraps
// inner with a health-check-backed ConnectionValidator.
func Dial(target string, inner syncengine.Adapter) (*Validator, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(
			retryinterceptor.UnaryClientInterceptor(
				retryinterceptor.WithMax(3),
				retryinterceptor.WithBackoff(retryinterceptor.BackoffExponential(100*time.Millisecond)),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("grpcadapter: dial %s: %w", target, err)
	}
	return &Validator{
		Adapter: inner,
		health:  grpc_health_v1.NewHealthClient(conn),
		conn:    conn,
	}, nil
}

func (v *Validator) ValidateConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := v.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return false
	}
	return resp.Status == grpc_health_v1.HealthCheckResponse_SERVING
}

func (v *Validator) Close() error {
	if closer, ok := v.Adapter.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return v.conn.Close()
}
