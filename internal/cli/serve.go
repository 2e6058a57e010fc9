package cli

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/promptchain/internal/chain"
	"github.com/opencode-ai/promptchain/internal/chains"
	"github.com/opencode-ai/promptchain/internal/config"
	"github.com/opencode-ai/promptchain/internal/daemon"
	"github.com/opencode-ai/promptchain/internal/db"
	"github.com/opencode-ai/promptchain/internal/logging"
	"github.com/opencode-ai/promptchain/internal/queue"
)

var (
	serveQueue    string
	serveAdapter  string
	serveGRPCAddr string
	serveHTTPAddr string
	serveNoLimit  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveQueue, "queue", "q", "", "queue to drain (default: daemon.queue)")
	serveCmd.Flags().StringVar(&serveAdapter, "agent", "", "agent adapter: chat, tmux, pty or echo")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc-addr", "", "gRPC health listen address (default: daemon.host:daemon.port)")
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http-addr", "", "HTTP API listen address (default: daemon.http_addr)")
	serveCmd.Flags().BoolVar(&serveNoLimit, "no-rate-limit", false, "disable request rate limiting")
}

var serveCmd = &cobra.Command{
	Use:   "serve [chain]",
	Short: "Drain a persisted queue whenever it has items",
	Long: `Run as a service. The daemon polls a persisted queue and runs the chain over
it whenever items are present, taking the run lock for each batch.

It serves /healthz, /metrics and a small queue API over HTTP, plus the
standard gRPC health service. The "promptchain.batch" health service reports
SERVING while a batch is running.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		logger := logging.Component("daemon")

		ref := cfg.Daemon.Chain
		if len(args) == 1 {
			ref = args[0]
		}
		if ref == "" {
			return &PreflightError{
				Message:  "no chain to serve",
				Hint:     "pass a chain name or set daemon.chain in the config",
				NextStep: "promptchain serve <chain>",
			}
		}
		c, err := chains.Find(ref, resolveProjectDir())
		if err != nil {
			return err
		}
		if err := chain.Validate(c); err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		eng, err := buildEngine(ctx, cfg, database, serveAdapter)
		if err != nil {
			return err
		}
		defer eng.Close()

		queueName := serveQueue
		if queueName == "" {
			queueName = cfg.Daemon.Queue
		}
		service := daemon.NewService(
			eng.controller(cfg, c),
			queue.NewPersistent(db.NewQueueRepository(database), queueName),
			cfg.Daemon.PollInterval,
			logger,
		)

		d, err := daemon.New(service, buildRateLimiter(cfg), logger, daemon.Options{
			GRPCAddr: resolveGRPCAddr(cfg),
			HTTPAddr: resolveHTTPAddr(cfg),
			Version:  appVersion,
		})
		if err != nil {
			return err
		}
		logger.Info().Str("chain", c.Name).Str("queue", queueName).Msg("serving chain")
		return d.Run(ctx)
	},
}

func buildRateLimiter(cfg *config.Config) *daemon.RateLimiter {
	limiter := daemon.NewRateLimiter(
		daemon.WithGlobalLimit(daemon.RateLimitConfig{
			RequestsPerSecond: cfg.Daemon.RateLimit,
			BurstSize:         cfg.Daemon.RateBurst,
		}),
	)
	if serveNoLimit || cfg.Daemon.RateLimit <= 0 {
		limiter.SetEnabled(false)
	}
	return limiter
}

func resolveGRPCAddr(cfg *config.Config) string {
	if serveGRPCAddr != "" {
		return serveGRPCAddr
	}
	if cfg.Daemon.Host == "" && cfg.Daemon.Port == 0 {
		return daemon.DefaultGRPCAddr
	}
	return net.JoinHostPort(cfg.Daemon.Host, strconv.Itoa(cfg.Daemon.Port))
}

func resolveHTTPAddr(cfg *config.Config) string {
	if serveHTTPAddr != "" {
		return serveHTTPAddr
	}
	if cfg.Daemon.HTTPAddr == "" {
		return daemon.DefaultHTTPAddr
	}
	return cfg.Daemon.HTTPAddr
}
