package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/cheque-extractor/internal/async"
	"github.com/joseph-ayodele/cheque-extractor/internal/extractapi"
)

// HealthService is the gRPC health service name reporting the extraction API.
const HealthService = "cheque.extractapi"

// HealthReporter tracks upstream health and mirrors it into a gRPC health server.
type HealthReporter struct {
	api     extractapi.HealthChecker
	hs      *health.Server
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	lastErr error
	checked time.Time
}

func NewHealthReporter(api extractapi.HealthChecker, timeout time.Duration, logger *slog.Logger) *HealthReporter {
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_UNKNOWN)
	return &HealthReporter{api: api, hs: hs, timeout: timeout, logger: logger}
}

// Probe checks the upstream once and records the outcome.
func (h *HealthReporter) Probe(ctx context.Context) error {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	err := h.api.Health(ctx)

	h.mu.Lock()
	changed := (err == nil) != (h.lastErr == nil) || h.checked.IsZero()
	h.lastErr = err
	h.checked = time.Now()
	h.mu.Unlock()

	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.hs.SetServingStatus(HealthService, status)
	if changed {
		if err != nil {
			h.logger.Warn("server.health.upstream_down", "error", err)
		} else {
			h.logger.Info("server.health.upstream_up")
		}
	}
	return err
}

// Last returns the outcome of the latest probe and when it ran.
func (h *HealthReporter) Last() (time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.checked, h.lastErr
}

// Monitor returns a poller that probes the upstream every interval.
func (h *HealthReporter) Monitor(interval time.Duration) *async.Poller {
	return async.NewPoller(func(ctx context.Context) bool {
		_ = h.Probe(ctx)
		return false
	}, h.logger, async.WithInterval(interval), async.WithName("health-monitor"))
}

// Shutdown marks every service as not serving.
func (h *HealthReporter) Shutdown() {
	h.hs.Shutdown()
}

// NewGRPCServer builds a gRPC server exposing the health service and reflection for grpcurl.
func (h *HealthReporter) NewGRPCServer() *grpc.Server {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, h.hs)
	reflection.Register(gs)
	return gs
}
