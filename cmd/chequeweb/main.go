package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/cheque-extractor/internal/common"
	"github.com/joseph-ayodele/cheque-extractor/internal/extractapi"
	"github.com/joseph-ayodele/cheque-extractor/internal/render"
	"github.com/joseph-ayodele/cheque-extractor/internal/server"
	"github.com/joseph-ayodele/cheque-extractor/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "", "config file (default ./cheque.yaml)")
	flag.Parse()

	v, err := common.NewViper(*configFile)
	if err != nil {
		slog.Error("failed to read config", "error", err)
		os.Exit(1)
	}
	cfg, err := common.LoadConfig(v)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := common.NewLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)
	logger.Info("chequeweb starting", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("chequeweb stopped", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("chequeweb stopped")
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	history, db, err := server.ConnectHistory(ctx, cfg.History, logger)
	if err != nil {
		return err
	}
	defer server.CloseHistory(db, logger)

	// every live session polls the same host
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32
	api := extractapi.NewClient(extractapi.Config{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.Key,
		Timeout: cfg.API.Timeout,
	}, logger, extractapi.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout, Transport: transport}))

	renderer, err := render.NewRenderer()
	if err != nil {
		return err
	}

	sessCfg := session.Config{PollInterval: cfg.Poll.Interval, NoticeTTL: cfg.UI.NoticeTTL}
	registry := server.NewRegistry(func(id string) *session.Session {
		opts := []session.Option{session.WithID(id)}
		if history != nil {
			opts = append(opts, session.WithRecorder(history))
		}
		return session.New(api, logger, sessCfg, opts...)
	}, cfg.UI.SessionTTL, logger)
	defer registry.CloseAll()

	janitor := registry.Janitor(time.Minute)
	janitor.Start(ctx)
	defer janitor.Stop()

	health := server.NewHealthReporter(api, 5*time.Second, logger)
	_ = health.Probe(ctx)
	monitor := health.Monitor(cfg.Server.HealthInterval)
	monitor.Start(ctx)
	defer monitor.Stop()

	handler := server.NewHandler(registry, renderer, history, health, server.Options{
		PollInterval: cfg.Poll.Interval,
		NoticeTTL:    cfg.UI.NoticeTTL,
		Stagger:      cfg.Export.Stagger,
		SupportEmail: cfg.UI.SupportEmail,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("chequeweb listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		grpcServer := health.NewGRPCServer()
		g.Go(func() error {
			logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			health.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
