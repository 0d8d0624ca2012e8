// relay serves the DM relay: the HTTP chat ingress (JSON and websocket) and the gRPC health service.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"dm-relay/internal/config"
	ingress "dm-relay/internal/ingress/handler"
	"dm-relay/internal/model"
	"dm-relay/internal/policy/engine"
	"dm-relay/internal/relay"
	"dm-relay/internal/security"
	"dm-relay/internal/server"
	"dm-relay/internal/session"
	"dm-relay/internal/storage"
	"dm-relay/internal/telemetry"
	telemetryotel "dm-relay/internal/telemetry/otel"
	"dm-relay/internal/transcript"
	"dm-relay/internal/upgrade"
)

const serviceName = "dm-relay"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(providers.MeterProvider.Meter(serviceName))
	if err != nil {
		log.Fatalf("telemetry: metrics: %v", err)
	}
	events := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	log.Printf("store: %s driver ready", cfg.DatabaseDriver)

	eligibility, err := engine.NewOPAEvaluatorFromFile(ctx, cfg.EligibilityPolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	hasher := security.NewIdentityHasher(cfg.IdentityHashCost)
	keys := security.NewLookupKeyer(cfg.IdentityLookupPepper)
	if keys.Enabled() {
		log.Println("session: identity lookup keys enabled")
	}

	if cfg.UpgradeIdentitiesOnStart {
		upgrader := upgrade.NewUpgrader(stores.Sessions, stores.Transcripts, hasher, keys, security.IsToken)
		upgrader.Timeout = cfg.StoreTimeoutDuration()
		if _, err := upgrader.UpgradeLegacyIdentities(ctx); err != nil {
			log.Fatalf("upgrade: %v", err)
		}
	}

	sessions := session.NewStore(stores.Sessions, hasher, keys, session.Options{
		TTL:     cfg.SessionTTLDuration(),
		Window:  cfg.SessionWindow,
		Timeout: cfg.StoreTimeoutDuration(),
	})
	sessions.OnCreate = metrics.SessionCreated

	transcripts := transcript.NewLog(stores.Transcripts, hasher, keys, eligibility, cfg.StoreTimeoutDuration())
	transcripts.OnFailure = metrics.TranscriptFailure

	generator, err := model.New(ctx, cfg)
	if err != nil {
		log.Fatalf("model: %v", err)
	}
	generator = model.WithTimeout(generator, cfg.LLMTimeoutDuration())

	svc := relay.NewService(eligibility, sessions, transcripts, generator, metrics, events)

	var auth ingress.TokenValidator
	if cfg.IngressJWTSecret != "" {
		auth = security.NewBridgeTokens(cfg.IngressJWTSecret, 0)
	} else {
		log.Println("ingress: INGRESS_JWT_SECRET not set; bearer auth and /v1/transcripts disabled")
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           ingress.New(svc, transcripts, auth).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP ingress listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		grpcSrv = server.NewGRPCServer(server.Deps{HealthPinger: stores, HealthPolicyChecker: eligibility})
		go func() {
			log.Printf("gRPC health server listening on %s", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down relay...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := model.Close(generator); err != nil {
		log.Printf("model close: %v", err)
	}
	if err := stores.Close(); err != nil {
		log.Printf("db close: %v", err)
	}

	// let in-flight exchange events reach the exporter before it shuts down
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("relay stopped")
}
