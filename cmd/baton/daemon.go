package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fentz26/baton/internal/agents"
	"github.com/fentz26/baton/internal/audit"
	"github.com/fentz26/baton/internal/config"
	"github.com/fentz26/baton/internal/controlplane"
	"github.com/fentz26/baton/internal/coordinator"
	"github.com/fentz26/baton/internal/escalation"
	"github.com/fentz26/baton/internal/invoker"
	"github.com/fentz26/baton/internal/invoker/command"
	"github.com/fentz26/baton/internal/invoker/llm"
	"github.com/fentz26/baton/internal/invoker/mock"
	"github.com/fentz26/baton/internal/logging"
	"github.com/fentz26/baton/internal/models"
	"github.com/fentz26/baton/internal/scheduler"
	"github.com/fentz26/baton/internal/store"
	"github.com/fentz26/baton/internal/validator"
	"github.com/fentz26/baton/internal/violations"
	"github.com/fentz26/baton/internal/workflow"
)

var (
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the Baton daemon",
	Long:  `Starts the Baton daemon which serves the HTTP API for workflow coordination.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Addr = listenAddr
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := store.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("closing database connection")
		if err := s.Close(); err != nil {
			logger.Warn("database close error", zap.Error(err))
		}
	}()

	dir, err := agents.Load(cfg.Agents.RulesFile)
	if err != nil {
		return err
	}

	wfs := workflow.NewStore(workflow.WithPersister(s), workflow.WithLogger(logger))
	restored, err := s.LoadWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("restore workflows: %w", err)
	}
	wfs.Restore(restored)
	logger.Info("restored workflows", zap.Int("count", len(restored)))

	inv, err := newInvoker(cfg, dir, logger)
	if err != nil {
		return err
	}

	esc, closeEscalator, err := newEscalator(cfg, s, logger)
	if err != nil {
		return err
	}
	defer closeEscalator()

	pdr := audit.NewPDRWriter(s)
	tracker := violations.New(violations.WithWindow(cfg.Violations.Window.Duration()))
	coord := coordinator.New(coordinator.Config{
		AutoApprove:       cfg.Coordinator.AutoApprove,
		MaxHandoffDepth:   cfg.Coordinator.MaxHandoffDepth,
		InvocationTimeout: cfg.Invocation.Timeout.Duration(),
		DefaultAgent:      models.AgentName(cfg.Coordinator.DefaultAgent),
	}, dir, wfs, validator.New(dir, tracker, logger), inv,
		coordinator.WithEscalator(esc),
		coordinator.WithRecorder(pdr),
		coordinator.WithLogger(logger),
	)

	service := controlplane.NewService(coord, s, tracker, pdr, logger)
	server := controlplane.NewServer(service, s, logger, controlplane.Config{
		Addr:    cfg.Server.Addr,
		Version: version,
	})

	sched := scheduler.New(tracker, wfs, s, pdr, &scheduler.Config{
		Interval:  cfg.Scheduler.Interval.Duration(),
		Retention: cfg.Scheduler.Retention.Duration(),
	}, logger)
	sched.Start()
	defer sched.Stop()

	logger.Info("baton daemon starting",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr),
		zap.String("invoker", inv.Name()),
		zap.String("db", cfg.Store.Path),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// newInvoker builds the agent invoker for the configured provider.
func newInvoker(cfg *config.Config, dir *agents.Directory, logger *zap.Logger) (invoker.Invoker, error) {
	ic := cfg.Invocation
	switch ic.Provider {
	case config.ProviderMock:
		return mock.New(), nil
	case config.ProviderCommand:
		inv, err := command.New(command.Config{Backend: ic.Command}, dir, logger)
		if err != nil {
			return nil, err
		}
		return inv, nil
	default:
		inv, err := llm.New(llm.Config{
			Provider:   ic.Provider,
			APIKey:     ic.APIKey.Value(),
			Model:      ic.Model,
			BaseURL:    ic.BaseURL,
			Timeout:    ic.Timeout.Duration(),
			MaxRetries: ic.MaxRetries,
			RateLimit:  ic.RateLimit,
			Burst:      ic.Burst,
		}, dir, llm.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return inv, nil
	}
}

// newEscalator delivers action items to SQLite and the log, plus NATS
// when a server URL is configured. The returned func drains the NATS
// connection.
func newEscalator(cfg *config.Config, s *store.Store, logger *zap.Logger) (escalation.Escalator, func(), error) {
	targets := escalation.Multi{
		escalation.NewStoreEscalator(s),
		escalation.NewLogging(logger),
	}
	if cfg.NATS.URL == "" {
		return targets, func() {}, nil
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("baton"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info("publishing escalations to nats",
		zap.String("url", cfg.NATS.URL),
		zap.String("subject_prefix", cfg.NATS.SubjectPrefix),
	)
	targets = append(targets, escalation.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix))
	return targets, func() {
		if err := nc.Drain(); err != nil {
			logger.Warn("nats drain failed", zap.Error(err))
		}
	}, nil
}
