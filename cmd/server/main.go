// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/time/rate"

	apiconnect "github.com/osa030/guildbox/internal/api/connect"
	"github.com/osa030/guildbox/internal/app/connection"
	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/app/idle"
	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/resolver"
	"github.com/osa030/guildbox/internal/app/room"
	"github.com/osa030/guildbox/internal/infra/config"
	"github.com/osa030/guildbox/internal/infra/discord"
	"github.com/osa030/guildbox/internal/infra/logger"
	"github.com/osa030/guildbox/internal/infra/spotify"
	"github.com/osa030/guildbox/internal/infra/ytdlp"
)

var (
	app        = kingpin.New("guildbox", "guildbox Discord music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() { _ = closeLog() }()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Bot error: %v", err)
		_ = closeLog()
		os.Exit(1)
	}
}

// run wires the bot and blocks until a shutdown signal or a server error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filters, err := filter.Build(cfg.EnabledFilters())
	if err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}

	// Spotify links are only rewritten when credentials are configured.
	var rewriter resolver.LinkRewriter
	if cfg.SpotifyEnabled() {
		sp, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
		rewriter = sp
		zlog.Info().Msg("Spotify track links enabled")
	}

	res := resolver.New(
		ytdlp.New(ytdlp.Config{Format: cfg.Resolver.Format, Timeout: cfg.Resolver.Timeout()}),
		rewriter,
		resolver.Config{Timeout: cfg.Resolver.Timeout()},
	)

	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}
	transport := discord.NewTransport(session, discord.AudioConfig{
		FFmpegPath:  cfg.Audio.FFmpegPath,
		Volume:      cfg.Audio.Volume,
		BitrateKbps: cfg.Audio.BitrateKbps,
	})

	conns := connection.NewManager(transport, connection.Config{
		AttemptTimeout: cfg.Voice.AttemptTimeout(),
		OverallTimeout: cfg.Voice.OverallTimeout(),
		MaxAttempts:    cfg.Voice.MaxAttempts,
		Backoff:        cfg.Voice.Backoff(),
		SwitchSettle:   cfg.Voice.SwitchSettle(),
		ReadySettle:    cfg.Voice.ReadySettle(),
	})

	notifier := notification.NewManager(notification.Config{SendTimeout: cfg.Notifications.SendTimeout()})
	defer notifier.Close()
	notifier.Subscribe(notification.LogSubscriber())
	notifier.Subscribe(discord.NewNotifier(session, discord.NotifierConfig{
		CommandsChannelID: cfg.Discord.CommandsChannelID,
		Rate:              rate.Limit(cfg.Notifications.RatePerSecond),
		Burst:             cfg.Notifications.Burst,
	}))

	engine := playback.NewEngine(
		playback.Config{SearchLimit: cfg.Resolver.SearchResults},
		room.NewStore(),
		conns,
		res,
		notifier,
		filters,
	)

	bot := discord.NewBot(session, discord.Config{
		GuildID: cfg.Discord.GuildID,
		Status:  cfg.Discord.Status,
	}, engine)
	if err := bot.Open(); err != nil {
		return err
	}

	monitor := idle.NewMonitor(idle.Config{
		Interval: cfg.Idle.Interval(),
		Window:   cfg.Idle.Window(),
	}, conns, transport, engine, notifier)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(ctx)
	}()

	serverErrCh := make(chan error, 1)
	var server *http.Server
	if cfg.AdminEnabled() {
		server = newAdminServer(cfg, engine)
		go func() {
			zlog.Info().Msgf("Starting admin server: addr=%s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrCh <- err
			}
		}()
	}

	zlog.Info().Msg("Bot is running. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = fmt.Errorf("admin server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()
	<-monitorDone

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown admin server: %v", err)
		}
	}

	engine.Close(shutdownCtx)
	conns.DisconnectAll(shutdownCtx)

	if err := bot.Close(); err != nil {
		zlog.Error().Msgf("Failed to close Discord session: %v", err)
	}

	zlog.Info().Msg("Bot stopped")
	return runErr
}

// newAdminServer serves the admin RPCs over h2c.
func newAdminServer(cfg *config.Config, engine *playback.Engine) *http.Server {
	adminService := apiconnect.NewAdminService(engine)
	path, handler := adminService.Handler(
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)),
	)

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	return &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// printFilters prints available filters.
func printFilters() {
	registry := filter.GetRegistered()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}
