package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// server-wide ("") status.
const ServiceName = "medivoice.Analyze"

// GRPCProbe serves the standard grpc.health.v1.Health service so gRPC-aware
// orchestrators can probe the daemon.
type GRPCProbe struct {
	port   int
	health *grpchealth.Server
	server *grpc.Server
}

// NewGRPCProbe creates a probe that reports NOT_SERVING until SetServing(true).
func NewGRPCProbe(port int) *GRPCProbe {
	h := grpchealth.NewServer()
	p := &GRPCProbe{port: port, health: h}
	p.SetServing(false)
	return p
}

// SetServing flips the reported status.
func (p *GRPCProbe) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	p.health.SetServingStatus("", status)
	p.health.SetServingStatus(ServiceName, status)
}

// Register adds the health service to s.
func (p *GRPCProbe) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, p.health)
}

// Listen starts the gRPC server. It blocks until the context is cancelled.
func (p *GRPCProbe) Listen(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", p.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return p.Serve(ctx, lis)
}

// Serve runs the gRPC server on lis until the context is cancelled.
func (p *GRPCProbe) Serve(ctx context.Context, lis net.Listener) error {
	p.server = grpc.NewServer()
	p.Register(p.server)

	slog.Info("grpc health probe listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		slog.Info("grpc health probe shutting down")
		p.health.Shutdown()
		p.server.GracefulStop()
	}()

	return p.server.Serve(lis)
}
