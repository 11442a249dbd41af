package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mediathekdl/mediathekdl/internal/api"
	"github.com/mediathekdl/mediathekdl/internal/config"
	"github.com/mediathekdl/mediathekdl/internal/database"
	"github.com/mediathekdl/mediathekdl/internal/downloader"
	"github.com/mediathekdl/mediathekdl/internal/ffmpeg"
	"github.com/mediathekdl/mediathekdl/internal/history"
	"github.com/mediathekdl/mediathekdl/internal/logger"
	"github.com/mediathekdl/mediathekdl/internal/mediathek"
	"github.com/mediathekdl/mediathekdl/internal/qualitycache"
	"github.com/mediathekdl/mediathekdl/internal/queue"
	"github.com/mediathekdl/mediathekdl/internal/scheduler"
	"github.com/mediathekdl/mediathekdl/internal/scheduler/tasks"
	"github.com/mediathekdl/mediathekdl/internal/subscription"
	"github.com/mediathekdl/mediathekdl/internal/transfer"
	"github.com/mediathekdl/mediathekdl/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	runOnce := flag.Bool("run-once", false, "Process all subscriptions once and exit")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	tail := logger.NewTail(0)
	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Extra:      tail,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting mediathekdl")

	if err := run(cfg, log, tail, *runOnce); err != nil {
		log.Error().Err(err).Msg("mediathekdl stopped with error")
		log.Close()
		os.Exit(1)
	}
	log.Info().Msg("mediathekdl stopped")
}

func run(cfg *config.Config, log *logger.Logger, tail *logger.Tail, runOnce bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info().Str("path", db.Path()).Msg("running database migrations")
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	hub := websocket.NewHub(log.Logger)
	go hub.Run(ctx)
	tail.SetHub(hub)

	historyStore := history.NewStore(db.Conn(), log.Logger)
	qualityStore := qualitycache.NewStore(db.Conn(), log.Logger)

	searchCfg := mediathek.DefaultConfig()
	searchCfg.BaseURL = cfg.Search.BaseURL
	searchCfg.Timeout = cfg.Search.RequestTimeout()
	searchCfg.AllowHTTP = cfg.Network.AllowHTTP
	searchCfg.FetchStreamSizes = cfg.Search.FetchStreamSizes
	searchCfg.UserAgent = config.UserAgent()
	searchClient := mediathek.NewClient(searchCfg, log.Logger)

	policy := transfer.NewPolicy(cfg.Network.AllowHTTP, cfg.Network.AllowUnknownDomains, cfg.Network.AllowedDomains)
	validator := transfer.NewValidator(policy, nil, log.Logger)
	transferer := transfer.NewDownloader(policy, nil, transfer.Config{
		BytesPerSecond: cfg.Download.BandwidthBytesPerSecond(),
		MinFreeSpace:   cfg.Download.MinFreeDiskSpaceBytes,
	}, log.Logger)

	supervisor := ffmpeg.NewSupervisor(log.Logger)
	defer supervisor.Shutdown()
	encoder := ffmpeg.NewService(ffmpeg.Config{
		FFmpegPath:  cfg.FFmpeg.FFmpegPath,
		FFprobePath: cfg.FFmpeg.FFprobePath,
	}, supervisor, validator, log.Logger)

	temp := downloader.NewTempPlacer(cfg.Download.TempPath, log.Logger)
	registry, err := downloader.NewRegistry(downloader.NewStrategies(downloader.Deps{
		Transfer:              transferer,
		Encoder:               encoder,
		Temp:                  temp,
		DirectAudioExtraction: cfg.Download.DirectAudioExtraction,
		DefaultLanguage:       cfg.Download.DefaultLanguage,
		Logger:                log.Logger,
	}))
	if err != nil {
		return err
	}
	executor := downloader.NewExecutor(registry, downloader.NewXMLNFOWriter(log.Logger), log.Logger)

	downloads := queue.NewManager(executor, historyStore, hub, queue.Config{
		MaxConcurrent: cfg.Download.MaxConcurrent,
	}, log.Logger)
	hub.SetSnapshot(func() (string, any) {
		return "download:snapshot", downloads.ListActive()
	})
	if err := downloads.Start(ctx); err != nil {
		return err
	}
	defer downloads.Stop()

	loadSubscriptions := func() ([]subscription.Subscription, error) {
		return subscription.LoadFile(cfg.Subscriptions.Path)
	}
	processor := subscription.NewProcessor(subscription.Deps{
		Source:    loadSubscriptions,
		Search:    searchClient,
		History:   historyStore,
		Queue:     downloads,
		Prober:    encoder,
		Cache:     qualityStore,
		Validator: validator,
	}, subscription.Config{
		DefaultPath:       cfg.Download.DefaultPath,
		DefaultLanguage:   cfg.Download.DefaultLanguage,
		DownloadSubtitles: cfg.Download.DownloadSubtitles,
		FutureBroadcasts:  cfg.Search.FutureBroadcasts,
		PageSize:          cfg.Search.PageSize,
	}, log.Logger)

	tempDirs := func() []string {
		dirs := append(temp.Dirs(), cfg.Download.DefaultPath)
		subs, err := loadSubscriptions()
		if err != nil {
			log.Warn().Err(err).Msg("failed to read subscriptions for temp cleanup")
		}
		for _, s := range subs {
			if s.Download.Path != "" {
				dirs = append(dirs, s.Download.Path)
			}
		}
		return dirs
	}
	if n := downloader.CleanupTempFiles(ctx, log.Logger, 0, tempDirs()...); n > 0 {
		log.Info().Int("deleted", n).Msg("removed leftover temp files")
	}

	if runOnce {
		stats, err := processor.Run(ctx)
		log.Info().
			Int("subscriptions", stats.Subscriptions).
			Int("processed", stats.Processed).
			Int("failed", stats.Failed).
			Msg("subscription run finished")
		return err
	}

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}
	if err := tasks.RegisterSubscriptionTask(sched, processor, &cfg.Scheduler); err != nil {
		return err
	}
	if err := tasks.RegisterTempCleanupTask(sched, cfg.Scheduler.CleanupCron, cfg.Scheduler.TempFileMaxAge(), tempDirs, log.Logger); err != nil {
		return err
	}
	if err := tasks.RegisterQueuePruneTask(sched, downloads, &cfg.Scheduler, log.Logger); err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Error().Err(err).Msg("scheduler shutdown error")
		}
	}()

	server := api.NewServer(api.Deps{
		Search:    searchClient,
		Breaker:   searchClient.Breaker(),
		Queue:     downloads,
		URLs:      policy,
		History:   historyStore,
		Hub:       hub,
		Scheduler: sched,
		Logs:      tail,
	}, cfg, log.Logger)
	server.StartBackground(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Server.Address())
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	// Kill encoders first so running jobs fail fast instead of waiting on them.
	supervisor.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}
