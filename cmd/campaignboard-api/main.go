package main

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/campaignboard/internal/broker"
	"github.com/MarcoPoloResearchLab/campaignboard/internal/campaigns"
	"github.com/MarcoPoloResearchLab/campaignboard/internal/config"
	"github.com/MarcoPoloResearchLab/campaignboard/internal/database"
	"github.com/MarcoPoloResearchLab/campaignboard/internal/logging"
	"github.com/MarcoPoloResearchLab/campaignboard/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "campaignboard-api",
		Short: "Campaign planning board backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(); err != nil {
				return err
			}
			return initConfig(viper.GetViper(), cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("store-backend", defaults.GetString("store.backend"), "Store backend (memory, sqlite)")
	cmd.PersistentFlags().Int("activity-capacity", defaults.GetInt("store.activity_capacity"), "Maximum retained activity entries")
	cmd.PersistentFlags().Bool("strict-references", defaults.GetBool("store.strict_references"), "Reject posts for unknown campaigns")
	cmd.PersistentFlags().Bool("seed", defaults.GetBool("store.seed"), "Populate the store with demo data at startup")
	cmd.PersistentFlags().String("seed-file", defaults.GetString("store.seed_file"), "YAML seed file used instead of the built-in demo data")
	cmd.PersistentFlags().String("amqp-url", defaults.GetString("amqp.url"), "AMQP broker URL for activity publishing")
	cmd.PersistentFlags().String("amqp-queue", defaults.GetString("amqp.queue"), "AMQP queue receiving activity entries")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "store.backend", "store-backend")
	bindFlag(cmd, "store.activity_capacity", "activity-capacity")
	bindFlag(cmd, "store.strict_references", "strict-references")
	bindFlag(cmd, "store.seed", "seed")
	bindFlag(cmd, "store.seed_file", "seed-file")
	bindFlag(cmd, "amqp.url", "amqp-url")
	bindFlag(cmd, "amqp.queue", "amqp-queue")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// loadEnvFile exports variables from the dotenv file; a missing file is not an error.
func loadEnvFile() error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// initConfig reads the named config file, failing if it is missing or malformed.
// Without a name, an absent config file is not an error.
func initConfig(configViper *viper.Viper, path string) error {
	if path != "" {
		configViper.SetConfigFile(path)
		return configViper.ReadInConfig()
	}

	if err := configViper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// newHTTPServer returns a server whose request contexts are cancelled when Shutdown
// starts, so long-lived event streams return instead of holding their connections.
func newHTTPServer(address string, handler http.Handler) *http.Server {
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Addr:    address,
		Handler: handler,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}
	httpServer.RegisterOnShutdown(cancelRequests)
	return httpServer
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	repository, closeRepository, err := openRepository(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeRepository()

	dispatcher := server.NewRealtimeDispatcher()
	notifiers := []campaigns.ActivityNotifier{dispatcher}

	if appConfig.AMQPURL != "" {
		publisher, err := broker.Dial(appConfig.AMQPURL, broker.PublisherConfig{
			Queue:      appConfig.AMQPQueue,
			BufferSize: appConfig.AMQPBufferSize,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close activity publisher", zap.Error(err))
			}
		}()
		notifiers = append(notifiers, publisher)
		logger.Info("activity publisher connected", zap.String("queue", appConfig.AMQPQueue))
	}

	campaignService, err := campaigns.NewService(campaigns.ServiceConfig{
		Repository:       repository,
		Clock:            time.Now,
		IDProvider:       campaigns.NewUUIDProvider(),
		Notifiers:        notifiers,
		StrictReferences: appConfig.StrictReferences,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	if appConfig.SeedEnabled {
		if err := seedStore(ctx, campaignService, appConfig.SeedFile); err != nil {
			return err
		}
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		CampaignService:   campaignService,
		Realtime:          dispatcher,
		HeartbeatInterval: appConfig.HeartbeatInterval,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	httpServer := newHTTPServer(appConfig.HTTPAddress, handler)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("store_backend", appConfig.StoreBackend))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func openRepository(appConfig config.AppConfig, logger *zap.Logger) (campaigns.Repository, func(), error) {
	switch appConfig.StoreBackend {
	case config.StoreBackendSQLite:
		db, err := database.OpenInMemorySQLite(logger)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		repository, err := database.NewRepository(db, appConfig.ActivityCapacity)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return repository, func() { _ = sqlDB.Close() }, nil
	default:
		repository, err := campaigns.NewMemoryRepository(appConfig.ActivityCapacity)
		if err != nil {
			return nil, nil, err
		}
		return repository, func() {}, nil
	}
}

func seedStore(ctx context.Context, service *campaigns.Service, seedFile string) error {
	var (
		set campaigns.SeedSet
		err error
	)
	if seedFile != "" {
		set, err = campaigns.LoadSeedFile(seedFile)
	} else {
		set, err = campaigns.DemoSeed()
	}
	if err != nil {
		return err
	}
	return service.Seed(ctx, set)
}
