// Package server builds the relay's gRPC server. It carries only the standard health service;
// chat traffic arrives over the HTTP ingress.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "dm-relay/internal/health/handler"
	"dm-relay/internal/server/interceptors"
)

// Deps holds optional dependencies for the gRPC services.
type Deps struct {
	// HealthPinger is used for readiness (e.g. *sql.DB). If nil, Check skips the store ping.
	HealthPinger healthhandler.Pinger
	// HealthPolicyChecker is used for readiness (e.g. the OPA evaluator). If nil, Check skips it.
	HealthPolicyChecker healthhandler.PolicyChecker
	// LogHealthChecks logs health probes along with other RPCs.
	LogHealthChecks bool
}

// RegisterServices registers the gRPC services with s.
//
// Proto → handler mapping:
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.HealthPinger, deps.HealthPolicyChecker))
}

// NewGRPCServer returns a server instrumented with otelgrpc and RPC logging, with services registered.
func NewGRPCServer(deps Deps) *grpc.Server {
	skip := map[string]bool{}
	if !deps.LogHealthChecks {
		skip[healthpb.Health_Check_FullMethodName] = true
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.LoggingUnary(skip)),
	)
	RegisterServices(s, deps)
	return s
}
