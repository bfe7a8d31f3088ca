package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/wadesk/internal/autoreply"
	"github.com/soyeahso/wadesk/internal/botconfig"
	"github.com/soyeahso/wadesk/internal/config"
	"github.com/soyeahso/wadesk/internal/gateway"
	"github.com/soyeahso/wadesk/internal/hooks"
	"github.com/soyeahso/wadesk/internal/ingest"
	"github.com/soyeahso/wadesk/internal/logging"
	"github.com/soyeahso/wadesk/internal/media"
	"github.com/soyeahso/wadesk/internal/provider"
	"github.com/soyeahso/wadesk/internal/registry"
	"github.com/soyeahso/wadesk/internal/relay"
	"github.com/soyeahso/wadesk/internal/store"
	"github.com/soyeahso/wadesk/internal/transcribe"
	"github.com/soyeahso/wadesk/internal/tunnel"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay and the dashboard server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(port, bind)
			if err != nil {
				return err
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

// loadServeConfig loads, overrides, and validates the runtime config and
// creates the data directories.
func loadServeConfig(port int, bind string) (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if bind != "" {
		cfg.Server.Bind = bind
	}
	if logLevel != "" {
		cfg.Logging.ConsoleLevel = logLevel
	}
	paths.FillLocations(&cfg)

	issues := config.Validate(&cfg)
	if len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}

	if err := paths.EnsureDirs(); err != nil {
		return cfg, fmt.Errorf("creating data directories: %w", err)
	}
	return cfg, nil
}

// startTunnel discovers the public dashboard URL outside production. A
// tunnel that cannot be built is logged and skipped.
func startTunnel(ctx context.Context, cfg config.Config, publish func(string), logger *logging.Logger) bool {
	if cfg.Server.Production() {
		return false
	}
	tp, err := tunnel.New(cfg.Tunnel, "http://"+statusAddr(cfg.Server), logger)
	if err != nil {
		logger.Warn().Err(err).Msg("tunnel disabled")
		return false
	}
	tunnel.Discover(ctx, tp, publish, logger)
	return tp != nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }


// serve wires the relay and runs it with the dashboard server until ctx is
// cancelled. The login QR is echoed to qrOut.
func serve(ctx context.Context, cfg config.Config, qrOut io.Writer) error {
	logger, closer, err := logging.NewFromConfig(logging.Config{
		Level:        cfg.Logging.Level,
		File:         cfg.Logging.File,
		ConsoleLevel: cfg.Logging.ConsoleLevel,
		ConsoleStyle: cfg.Logging.ConsoleStyle,
	}, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := store.Open(cfg.Provider.JournalDB, logger)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer db.Close()
	journal := store.NewJournal(db)

	hookMgr := hooks.NewManager(logger)
	if n := hookMgr.RegisterCommands(cfg.Hooks); n > 0 {
		logger.Info().Int("hooks", n).Msg("shell hooks registered")
	}

	clients := gateway.NewClientRegistry(logger)
	fan := relay.NewSync(clients, hookMgr, logger)
	chats := registry.New(cfg.Session.ChatListLimit, fan)

	prov, err := provider.New(cfg.Provider, cfg.Session, journal, qrOut, logger)
	if err != nil {
		return err
	}

	mat := media.New(media.Options{
		Dir:         cfg.Media.UploadDir,
		URLPrefix:   cfg.Media.URLPrefix,
		MaxWidth:    cfg.Media.ImageMaxWidth,
		JPEGQuality: cfg.Media.JPEGQuality,
	}, logger)

	bots := botconfig.NewStore(botconfig.NewFilePersistence(cfg.Bot.ConfigFile), logger)
	// An unreadable file keeps the defaults; the store already logged it.
	_ = bots.Load()

	sched := autoreply.NewScheduler(prov, logger, autoreply.WithSentFunc(fan.AutoReplySent))
	defer sched.Close()

	pipe := ingest.New(ingest.Deps{
		Index:        chats,
		Materializer: mat,
		Sink:         fan,
		Seer:         prov,
		Config:       bots,
		Scheduler:    sched,
		Policy: autoreply.Policy{
			KeywordDelay:  ms(cfg.Bot.KeywordDelayMs),
			GreetingDelay: ms(cfg.Bot.GreetingDelayMs),
		},
	}, logger, ingest.WithCallTimeout(ms(cfg.Session.CallTimeoutMs)))

	rel := relay.New(relay.Deps{
		Provider:    prov,
		Chats:       chats,
		Config:      bots,
		Ingest:      pipe,
		Media:       mat,
		Scheduler:   sched,
		Transcriber: transcribe.NewStub(transcribe.DefaultDelay),
		Sync:        fan,
	}, relay.Options{
		ReconnectDelay:       ms(cfg.Session.ReconnectDelayMs),
		AuthFailureDelay:     ms(cfg.Session.AuthFailureDelayMs),
		InitErrorDelay:       ms(cfg.Session.InitErrorDelayMs),
		HistoryLimit:         cfg.Session.HistoryLimit,
		CancelPendingOnPause: cfg.Bot.CancelPendingOnPause,
	}, logger)

	srv := gateway.New(cfg.Server, logger,
		gateway.WithClients(clients),
		gateway.WithBackend(rel),
		gateway.WithUploads(mat),
		gateway.WithHooks(hookMgr),
	)

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		rel.Run(ctx)
	}()

	startTunnel(ctx, cfg, rel.SetTunnelURL, logger)

	logger.Info().
		Str("provider", cfg.Provider.Kind).
		Str("journal", cfg.Provider.JournalDB).
		Str("uploads", cfg.Media.UploadDir).
		Msg("relay wired")

	err = srv.Start(ctx)
	cancel()
	<-relayDone

	flushCtx, flushCancel := context.WithTimeout(context.Background(), hooks.DefaultCommandTimeout)
	defer flushCancel()
	if werr := hookMgr.Wait(flushCtx); werr != nil {
		logger.Warn().Err(werr).Msg("hook handlers still running at exit")
	}
	return err
}
