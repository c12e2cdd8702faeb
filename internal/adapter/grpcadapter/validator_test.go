package grpcadapter

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/webitel/im-sync-engine/internal/syncengine"
)

type noopAdapter struct{}

func (noopAdapter) Create(context.Context, string, map[string]any) (syncengine.Outcome, error) {
	return syncengine.Outcome{Kind: syncengine.OutcomeOK}, nil
}
func (noopAdapter) Update(context.Context, string, string, map[string]any) (syncengine.Outcome, error) {
	return syncengine.Outcome{Kind: syncengine.OutcomeOK}, nil
}
func (noopAdapter) Delete(context.Context, string, string) (syncengine.Outcome, error) {
	return syncengine.Outcome{Kind: syncengine.OutcomeOK}, nil
}
func (noopAdapter) FetchUpdates(context.Context, string, syncengine.FetchOptions) (syncengine.FetchPage, error) {
	return syncengine.FetchPage{}, nil
}

func startHealthServer(t *testing.T, serving bool) (addr string, stop func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !serving {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", status)
	grpc_health_v1.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	return lis.Addr().String(), srv.Stop
}

func TestValidator_ValidateConnection_Serving(t *testing.T) {
	addr, stop := startHealthServer(t, true)
	defer stop()

	v, err := Dial(addr, noopAdapter{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer v.Close()

	if !v.ValidateConnection(context.Background()) {
		t.Fatal("expected connection to validate as healthy")
	}
}

func TestValidator_ValidateConnection_NotServing(t *testing.T) {
	addr, stop := startHealthServer(t, false)
	defer stop()

	v, err := Dial(addr, noopAdapter{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer v.Close()

	if v.ValidateConnection(context.Background()) {
		t.Fatal("expected connection to validate as unhealthy")
	}
}
