package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	pkg "git.solsynth.dev/hypernet/chronicle/pkg/internal"
	localCache "git.solsynth.dev/hypernet/chronicle/pkg/internal/cache"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/composer"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/database"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/events"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/http"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/http/api"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/pipeline"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/registry"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/services"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/services/sources"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var settingsFile string

	rootCmd := &cobra.Command{
		Use:     "chronicle",
		Short:   "Timeline composition and feed service",
		Version: pkg.AppVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadSettings(settingsFile)
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&settingsFile, "settings", "s", "", "path of the settings file")
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())

	return rootCmd
}

func loadSettings(settingsFile string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Unable to load .env file, skipping...")
	}

	// Configure settings
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("settings")
	viper.SetConfigType("toml")
	if len(settingsFile) > 0 {
		viper.SetConfigFile(settingsFile)
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("bind", "0.0.0.0:8445")
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("cache.ttl", "5m")
	viper.SetDefault("ledger.poll_interval", "3s")
	viper.SetDefault("ledger.confirm_timeout", "10m")
	viper.SetDefault("events.stream", events.DefaultStream)
	viper.SetDefault("events.max_len", 10000)
	viper.SetDefault("cleanup.retracted_retention", "720h")
	viper.SetDefault("cleanup.session_idle", "24h")

	// Load settings
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("an error occurred when loading settings: %v", err)
	}
	return nil
}

func connectDatabase() {
	if err := database.NewGorm(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connect to database.")
	} else if err := database.RunMigration(database.C); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when running database auto migration.")
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run the database auto migration and exit",
		Run: func(cmd *cobra.Command, args []string) {
			connectDatabase()
			log.Info().Msg("Database migration has been done.")
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		Run: func(cmd *cobra.Command, args []string) {
			serve()
		},
	}
}

func newLedger(ctx context.Context) ledger.Ledger {
	if len(viper.GetString("ledger.endpoint")) == 0 {
		log.Warn().Msg("No ledger endpoint configured, using the in-memory ledger...")
		return ledger.NewMemory(viper.GetString("ledger.owner"), viper.GetDuration("ledger.poll_interval"))
	}

	chain, err := ledger.DialEthLedger(ctx, ledger.Config{
		Endpoint:       viper.GetString("ledger.endpoint"),
		Contract:       viper.GetString("ledger.contract"),
		PrivateKey:     viper.GetString("ledger.private_key"),
		PollInterval:   viper.GetDuration("ledger.poll_interval"),
		ConfirmTimeout: viper.GetDuration("ledger.confirm_timeout"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connecting to ledger...")
	}
	log.Info().Int64("chain", chain.ChainID()).Msg("Connected to ledger.")
	return chain
}

func newEventPublisher(ctx context.Context) (events.Publisher, func()) {
	if len(viper.GetString("events.redis_url")) == 0 {
		return events.Nop{}, func() {}
	}

	stream, err := events.NewStreamPublisher(
		viper.GetString("events.redis_url"),
		viper.GetString("events.stream"),
		viper.GetInt64("events.max_len"),
	)
	if err != nil {
		log.Error().Err(err).Msg("An error occurred when configuring timeline events, they will not be published.")
		return events.Nop{}, func() {}
	}
	if err := stream.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Unable to reach redis, timeline events may be dropped...")
	}
	return stream, func() {
		_ = stream.Close()
	}
}

func serve() {
	// Booting screen
	fmt.Println(color.YellowString("  ____ _                     _      _\n / ___| |__  _ __ ___  _ __ (_) ___| | ___\n| |   | '_ \\| '__/ _ \\| '_ \\| |/ __| |/ _ \\\n| |___| | | | | | (_) | | | | | (__| |  __/\n \\____|_| |_|_|  \\___/|_| |_|_|\\___|_|\\___|"))
	fmt.Printf("%s v%s\n", color.New(color.FgHiYellow).Add(color.Bold).Sprintf("Hypernet.Chronicle"), pkg.AppVersion)
	fmt.Printf("The timeline composition service in Hypernet\n")
	color.HiBlack("=====================================================\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	connectDatabase()

	// Initialize cache
	if err := localCache.NewStore(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when initializing cache.")
	}

	chain := newLedger(ctx)
	stream, closeStream := newEventPublisher(ctx)

	reg := registry.Default()
	store := services.NewContentStore(database.C)
	overlay := pipeline.NewOverlay(reg.Now)

	feedService := services.NewFeedService(
		store,
		overlay,
		services.WithFeedCache(localCache.S, viper.GetDuration("cache.ttl")),
		services.WithFeedSources(sources.NewFromConfig(sources.ReadConfig(), nil)...),
	)

	submissions := pipeline.New(
		reg,
		store,
		chain,
		pipeline.WithOverlay(overlay),
		pipeline.WithPublisher(events.Fanout{stream, feedService}),
		pipeline.WithLanguageDetector(services.DetectLanguage),
	)
	go submissions.Run(ctx, chain.Confirmations())

	sessions := composer.NewSessions(reg, submissions)

	cleaner := &services.Cleaner{
		Store:              store,
		Pipeline:           submissions,
		Sessions:           sessions,
		RetractedRetention: viper.GetDuration("cleanup.retracted_retention"),
		ParkedRetention:    viper.GetDuration("ledger.confirm_timeout"),
		OverlayRetention:   2 * viper.GetDuration("cache.ttl"),
		SessionIdle:        viper.GetDuration("cleanup.session_idle"),
	}

	// Configure timed tasks
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	quartz.AddFunc("@every 60m", cleaner.DoAutoDatabaseCleanup)
	quartz.AddFunc("@every 5m", cleaner.DoAutoMemoryCleanup)
	quartz.AddFunc("@every 10m", feedService.RefreshSources)
	quartz.Start()

	// Server
	server := http.NewServer(&api.Router{
		Registry: reg,
		Sessions: sessions,
		Pipeline: submissions,
		Store:    store,
		Feed:     feedService,
		Ledger:   chain,
	})
	go server.Listen()

	log.Info().Str("bind", viper.GetString("bind")).Msg("Chronicle is ready.")

	// Messages
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	if err := server.Shutdown(); err != nil {
		log.Error().Err(err).Msg("An error occurred when shutting down server...")
	}
	quartz.Stop()
	cancel()
	chain.Close()
	closeStream()
}
