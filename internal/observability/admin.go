package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// SessionInfo is one row of GET /api/v1/sessions.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Peer      string    `json:"peer"`
	StartedAt time.Time `json:"started_at"`
}

// RelayCounters is the body of GET /api/v1/relay/{session_id}/counters.
type RelayCounters struct {
	BytesUp       int64 `json:"bytes_up"`
	BytesDown     int64 `json:"bytes_down"`
	ActiveStreams int64 `json:"active_streams"`
}

// AdminView is the read-only data source the admin surface queries; the
// caller (cmd/kerr) supplies an implementation backed by the
// multiplexer's session registry and the live relay sessions' Counters.
type AdminView interface {
	Sessions() []SessionInfo
	RelayCounters(sessionID string) (RelayCounters, bool)
}

// AdminServer is the §4's read-only admin/introspection surface: a gRPC
// server (carrying only the standard health-check service, since no
// Kerr-specific RPC surface is in scope) plus an HTTP server exposing
// /healthz, /metrics, and the JSON session/relay endpoints, bound to
// 127.0.0.1 and off by default.
type AdminServer struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	health     *health.Server

	mu      sync.Mutex
	grpcLis net.Listener
}

// NewAdminServer wires the gRPC health service and the JSON HTTP mux
// together. It follows the same gRPC-plus-gateway-with-fallback shape a
// generated-protobuf admin API would use: a grpc-gateway ServeMux is
// built first so a future Kerr-specific .proto surface can register
// against it, but since no such stubs exist yet every route below is
// mounted as a native handler on the gateway mux's root, the documented
// fallback path for when gateway registration has nothing to attach to.
func NewAdminServer(view AdminView, metrics *Metrics, healthChecker *HealthChecker) *AdminServer {
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	gw := runtime.NewServeMux(runtime.WithErrorHandler(jsonErrorHandler))
	mux := http.NewServeMux()
	mux.Handle("/healthz", healthChecker.Handler())
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, view.Sessions())
	})
	mux.HandleFunc("/api/v1/relay/", func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/relay/"), "/counters")
		counters, ok := view.RelayCounters(sessionID)
		if !ok {
			http.Error(w, "unknown relay session", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, counters)
	})
	gw.HandlePath(http.MethodGet, "/**", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		mux.ServeHTTP(w, r)
	})

	return &AdminServer{
		grpcServer: grpcServer,
		health:     healthSrv,
		httpServer: &http.Server{Handler: gw},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// jsonErrorHandler renders gateway-level errors (e.g. an RPC-backed
// route once one exists) as the same normalized JSON shape regardless
// of which handler produced them.
func jsonErrorHandler(ctx context.Context, mux *runtime.ServeMux, marshaler runtime.Marshaler, w http.ResponseWriter, r *http.Request, err error) {
	st, ok := status.FromError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "INTERNAL", "message": "internal error"})
		return
	}
	httpStatus := runtime.HTTPStatusFromCode(st.Code())
	writeJSON(w, httpStatus, map[string]string{"code": codeToString(st.Code()), "message": st.Message()})
}

func codeToString(c codes.Code) string {
	switch c {
	case codes.InvalidArgument:
		return "INVALID_ARGUMENT"
	case codes.NotFound:
		return "NOT_FOUND"
	case codes.FailedPrecondition:
		return "FAILED_PRECONDITION"
	case codes.Unauthenticated:
		return "UNAUTHENTICATED"
	case codes.Unavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// Serve binds the HTTP server to addr and the gRPC server to an
// ephemeral port on 127.0.0.1 (reported by GRPCAddr), and runs until ctx
// is cancelled. The HTTP server is confined to 127.0.0.1 only when the
// caller-supplied addr is.
func (a *AdminServer) Serve(ctx context.Context, addr string) error {
	httpLis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("observability: admin http listen: %w", err)
	}
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("observability: admin grpc listen: %w", err)
	}
	a.mu.Lock()
	a.grpcLis = grpcLis
	a.mu.Unlock()

	errc := make(chan error, 2)
	go func() { errc <- a.grpcServer.Serve(grpcLis) }()
	go func() {
		if err := a.httpServer.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.grpcServer.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errc:
		return err
	}
}

// GRPCAddr returns the address the gRPC health service bound to, valid
// once Serve has started.
func (a *AdminServer) GRPCAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.grpcLis == nil {
		return ""
	}
	return a.grpcLis.Addr().String()
}
