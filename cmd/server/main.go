// Command anonmatch-server starts the matchmaking gRPC server.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/anonmatch/internal/config"
	"github.com/and161185/anonmatch/internal/crypto"
	grpcserver "github.com/and161185/anonmatch/internal/server/grpc"
	"github.com/and161185/anonmatch/internal/service"
	"github.com/and161185/anonmatch/internal/telemetry"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, wires stores and the notifier, and serves gRPC until
// SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
		zap.String("notifier", cfg.Notifier),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := "prod"
	if cfg.Dev {
		env = "dev"
	}
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, version, env)
	if err != nil {
		logger.Fatal("init tracer", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	ids, err := crypto.NewPseudonym([]byte(cfg.PseudonymKey))
	if err != nil {
		logger.Fatal("pseudonym key", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer st.Close()

	n, err := openNotifier(cfg, logger, ids)
	if err != nil {
		logger.Fatal("open notifier", zap.Error(err))
	}
	defer n.Close()

	svc, err := service.NewMatchService(service.Deps{
		Profiles: st.profiles,
		Blocks:   st.blocks,
		Queue:    st.queue,
		Sessions: st.sessions,
		Notifier: n.notifier,
	}, service.Options{
		Interval:    cfg.Interval,
		MaxAttempts: cfg.MaxAttempts,
		EvictAfter:  cfg.EvictAfter,
		Log:         logger,
		Limiter:     st.limiter,
		IDs:         ids,
	})
	if err != nil {
		logger.Fatal("match service", zap.Error(err))
	}
	defer svc.Close()

	if resumed, err := svc.Resume(ctx); err != nil {
		logger.Warn("resume queued searches", zap.Error(err))
	} else if resumed > 0 {
		logger.Info("resumed queued searches", zap.Int("count", resumed))
	}

	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary([]byte(cfg.JWTKey)),
		),
		grpc.ChainStreamInterceptor(
			grpcserver.RecoverStream(logger),
			grpcserver.LoggingStream(logger),
			grpcserver.AuthStream([]byte(cfg.JWTKey)),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("serving without TLS")
	}
	s := grpc.NewServer(opts...)

	grpcserver.RegisterMatchmakerServer(s, grpcserver.New(svc, []byte(cfg.JWTKey), ids, n.hub))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		svc.Close()
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
