package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"croesus/internal/aws"
	"croesus/internal/cache"
	"croesus/internal/config"
	"croesus/internal/database"
	"croesus/internal/mailbox"
	"croesus/internal/rabbitmq"
	"croesus/internal/relay"
	"croesus/internal/server"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to Croesus.toml (default: search path)")
	testMode := pflag.Bool("test", false, "announce outside the tournament and skip dump file checks")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if *testMode {
		cfg.Node.Test = true
	}

	closeLog := setupLogger(cfg.Logging)
	defer closeLog()
	log.Info().
		Str("node", cfg.Node.ID).
		Str("config", cfg.ConfigPath).
		Bool("test", cfg.Node.Test).
		Msg("Starting Croesus")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("Croesus stopped with an error")
		closeLog()
		os.Exit(1)
	}
	log.Info().Msg("Croesus stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.RabbitMQ.Host == "" {
		return errors.New("rabbitmq.host is required: it carries all chat output")
	}
	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	tr, err := rabbitmq.NewTransport(ctx, rabbit, cfg.RabbitMQ.ExchangeName, cfg.RabbitMQ.QueuePrefix,
		cfg.Node.ID, knownNodes(cfg.Node), chatChannels(cfg.Chat))
	if err != nil {
		rabbit.Close()
		return fmt.Errorf("failed to set up transport: %w", err)
	}
	defer tr.Close()

	deps := relay.Deps{Transport: tr}

	var store cache.Cache
	if cfg.Redis.Address != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, messages and milestones will not survive a restart")
		} else {
			defer redisCache.Close()
			store = redisCache
			deps.State = store
			deps.Mailbox = mailbox.New(store)
		}
	}

	var db database.Database
	if cfg.MongoDB.URI != "" {
		db, err = database.New(cfg.MongoDB)
		if err != nil {
			log.Warn().Err(err).Msg("MongoDB unavailable, games will not be archived")
			db = nil
		} else {
			defer db.Close(context.Background())
			deps.Archive = db
			deps.Snapshots = db
		}
	}

	var files aws.FileService
	if cfg.S3.Bucket != "" {
		files, err = aws.NewFileService(cfg.S3)
		if err != nil {
			log.Warn().Err(err).Msg("S3 unavailable, stat reports will not be uploaded")
			files = nil
		} else {
			deps.Files = files
		}
	}

	rl, err := relay.New(cfg, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rl.Run(ctx)
	})

	if cfg.HTTP.Enabled {
		srv := server.New(cfg.HTTP, rl, db, store, rabbit, files)
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// knownNodes are the ids whose private messages go to node queues rather
// than to chat users
func knownNodes(n config.NodeConfig) []string {
	seen := map[string]bool{n.ID: true}
	out := []string{n.ID}
	for _, id := range append(append([]string(nil), n.Peers...), n.Masters...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func chatChannels(c config.ChatConfig) []string {
	seen := map[string]bool{}
	var out []string
	for _, ch := range append(append([]string(nil), c.Channels...), c.SpamChannels...) {
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

// setupLogger configures the global logger and returns a func closing the
// log file, if any
func setupLogger(cfg config.LoggingConfig) func() {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	closer := func() {}
	if cfg.Directory != "" {
		f, err := os.OpenFile(filepath.Join(cfg.Directory, "croesus.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Warn().Err(err).Str("directory", cfg.Directory).Msg("Failed to open log file, logging to stdout")
		} else {
			out = f
			closer = func() { f.Close() }
		}
	}

	switch cfg.Format {
	case "json":
		log.Logger = zerolog.New(out)
	default:
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: out != os.Stdout})
	}

	log.Logger = log.With().Timestamp().Logger()
	return closer
}
