// Package health serves grpc.health.v1 for orchestrators. The service reports SERVING while
// every registered dependency answers its ping.
package health

import (
	"context"
	"log/slog"
	"net"
	"time"

	"procureflow/pkg/logkey"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	service  string
	pingers  map[string]Pinger
	interval time.Duration
}

// NewServer registers the health service under both "" and service.
func NewServer(service string, interval time.Duration, pingers map[string]Pinger) *Server {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &Server{
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		service:  service,
		pingers:  pingers,
		interval: interval,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Probe pings every dependency once and updates the serving status.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, p := range s.pingers {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := p.PingContext(pctx)
		cancel()
		if err != nil {
			slog.Warn("dependency unhealthy", slog.String("Dependency", name), slog.String(logkey.ERROR, err.Error()))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.setStatus(status)
	return status
}

// Serve probes on an interval and serves gRPC on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.Probe(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpc.GracefulStop()
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Check answers a health request in-process, the same way a remote client would see it.
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
