package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"payin-backend/internal/config"
	"payin-backend/internal/db"
	"payin-backend/internal/domain"
	"payin-backend/internal/handler"
	"payin-backend/internal/lock"
	"payin-backend/internal/logging"
	"payin-backend/internal/notifier"
	"payin-backend/internal/ports"
	"payin-backend/internal/repository"
	"payin-backend/internal/server"
	"payin-backend/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every command needs once config is loaded.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	closer io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "payin",
		Short:         "Pay-in capture and promotion rule service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			slog.SetDefault(logger)
			if cfg.MaxHierarchyDepth > 0 {
				domain.MaxHierarchyDepth = cfg.MaxHierarchyDepth
			}
			a.cfg, a.logger, a.closer = cfg, logger, closer
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.closer != nil {
				_ = a.closer.Close()
			}
		},
	}
	root.AddCommand(newServeCmd(a), newMigrateCmd(a), newActiveStatusCmd(a), newEvaluateCmd(a))
	return root
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.Migrate(a.cfg.DatabaseURL, steps, a.logger)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "Steps to apply; 0 migrates fully up, negative rolls back")
	return cmd
}

func newActiveStatusCmd(a *app) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "update-active-status",
		Short: "Recompute member activity for a period (default: current month)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := periodFlag(period)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(store repository.Store) error {
				svc := service.ActiveStatusService{Store: store, Logger: a.logger}
				report, err := svc.Run(cmd.Context(), p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "period %s: examined %d, updated %d\n", report.Period, report.Examined, report.Updated)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "Period as YYYY-MM")
	return cmd
}

func newEvaluateCmd(a *app) *cobra.Command {
	var period, member string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Re-run promotion rules over a period's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := periodFlag(period)
			if err != nil {
				return err
			}
			var memberID *int64
			if member != "" {
				id, err := strconv.ParseInt(member, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid --member %q", member)
				}
				memberID = &id
			}
			return a.withStore(cmd.Context(), func(store repository.Store) error {
				svc := service.RuleService{Store: store, Evaluator: service.Evaluator{Logger: a.logger}}
				n, err := svc.Evaluate(cmd.Context(), p, memberID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "period %s: evaluated %d records\n", p, n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "Period as YYYY-MM")
	cmd.Flags().StringVar(&member, "member", "", "Only this member id")
	return cmd
}

func (a *app) withStore(ctx context.Context, fn func(repository.Store) error) error {
	if a.cfg.StoreDriver == "memory" {
		return fmt.Errorf("STORE_DRIVER=memory holds no data outside serve")
	}
	pg, err := db.New(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pg.Close()
	return fn(repository.PostgresStore{DB: pg})
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	var store repository.Store
	var health ports.HealthChecker
	var closers []server.Closer
	serving := false
	defer func() {
		if !serving {
			server.Release(closers, logger)
		}
	}()
	if cfg.StoreDriver == "memory" {
		mem := repository.NewMemoryStore()
		store, health = mem, mem
		logger.Warn("using in-memory store; data is lost on exit")
	} else {
		if cfg.MigrateOnStart {
			if err := db.Migrate(cfg.DatabaseURL, 0, logger); err != nil {
				return err
			}
		}
		pg, err := db.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		closers = append(closers, server.Closer{Name: "postgres", Close: func() error { pg.Close(); return nil }})
		store, health = repository.PostgresStore{DB: pg}, pg
	}

	var sales service.Notifier = notifier.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kn := notifier.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		closers = append(closers, server.Closer{Name: "kafka", Close: kn.Close})
		sales = kn
		logger.Info("sale notifications enabled", "topic", cfg.KafkaTopic)
	}

	var locker service.Locker = lock.Local{}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		closers = append(closers, server.Closer{Name: "redis", Close: client.Close})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		locker = lock.NewRedisLocker(client, cfg.LockTTL, logger)
		logger.Info("distributed sheet locks enabled", "addr", cfg.RedisAddr)
	}

	// services
	evaluator := service.Evaluator{Logger: logger}
	aggregator := service.Aggregator{Evaluator: evaluator, Logger: logger}
	members := service.MemberService{Store: store, Logger: logger}
	status := service.ActiveStatusService{Store: store, Logger: logger}
	prints := service.PrintService{Store: store, Limit: cfg.PrintLimit}
	capture := service.CaptureService{Store: store, Aggregator: aggregator, Notifier: sales, Locker: locker, Logger: logger}

	// handlers
	router := server.NewRouter(cfg, logger, server.Handlers{
		Health: handler.HealthHandler{DB: health},
		Members: handler.MemberHandler{
			Members:    members,
			Promotions: service.PromotionService{Store: store, Logger: logger},
			Status:     status,
		},
		Sheets:    handler.SheetHandler{Capture: capture, Members: members, Prints: prints},
		Summaries: handler.SummaryHandler{Summaries: service.SummaryService{Store: store, Logger: logger}, Prints: prints},
		History:   handler.HistoryHandler{History: service.HistoryService{Store: store}, Members: members},
		Rules:     handler.RuleHandler{Rules: service.RuleService{Store: store, Evaluator: evaluator}, Status: status},
	})

	serving = true
	return server.Start(ctx, cfg, router, logger, closers...)
}

func periodFlag(s string) (domain.Period, error) {
	if s == "" {
		return domain.NewPeriod(time.Now().UTC()), nil
	}
	return domain.ParsePeriod(s)
}
