package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chainpulse/wallet-tracker/internal/config"
	"github.com/chainpulse/wallet-tracker/internal/ingest"
	"github.com/chainpulse/wallet-tracker/internal/metrics"
	"github.com/chainpulse/wallet-tracker/internal/notification"
	"github.com/chainpulse/wallet-tracker/internal/provider"
	"github.com/chainpulse/wallet-tracker/internal/rotation"
	"github.com/chainpulse/wallet-tracker/internal/scheduler"
	"github.com/chainpulse/wallet-tracker/internal/server"
	"github.com/chainpulse/wallet-tracker/internal/storage"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the tracker components together
type Application struct {
	config       *config.Config
	logger       *logrus.Logger
	storage      storage.Storage
	provider     *provider.Client
	rotator      *rotation.Rotator
	notification *notification.Manager
	hub          *notification.WebSocketHub
	metrics      *metrics.Metrics
	ingestor     *ingest.Ingestor
	scheduler    *scheduler.Scheduler
	server       *server.HTTPServer
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.metrics = metrics.New()

	app.initializeNotification()
	app.initializeProvider()
	app.initializeIngestor()
	app.initializeScheduler()
	app.initializeServer()

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	app.logger.Info("Initializing storage layer")

	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return err
	}
	if err := store.Connect(); err != nil {
		return err
	}
	if err := store.Migrate(); err != nil {
		return err
	}

	app.storage = store
	app.logger.Info("Storage layer initialized successfully")
	return nil
}

// initializeNotification initializes the notification channels
func (app *Application) initializeNotification() {
	notifCfg := app.config.Notifications

	var senders []notification.Sender
	if notifCfg.EnableWebSocket {
		app.hub = notification.NewWebSocketHub()
		app.hub.SetMetrics(app.metrics)
		senders = append(senders, app.hub)
	}
	if notifCfg.EnableRedis {
		senders = append(senders, notification.NewRedisPublisher(&notification.RedisConfig{
			Addr:     notifCfg.RedisAddr,
			Password: notifCfg.RedisPassword,
			DB:       notifCfg.RedisDB,
			Channel:  notifCfg.RedisChannel,
		}))
	}

	operator := notification.NewOperatorWebhook(notifCfg.OperatorWebhookURL, notifCfg.SendTimeout)

	app.notification = notification.NewManager(
		&notification.ManagerConfig{SendTimeout: notifCfg.SendTimeout},
		operator,
		senders...,
	)
	app.notification.SetMetrics(app.metrics)

	app.logger.WithFields(logrus.Fields{
		"websocket": notifCfg.EnableWebSocket,
		"redis":     notifCfg.EnableRedis,
	}).Info("Notification manager initialized")
}

// initializeProvider initializes the provider client and credential pool
func (app *Application) initializeProvider() {
	app.provider = provider.NewClient(&provider.ClientConfig{
		BaseURL:        app.config.Provider.BaseURL,
		RequestTimeout: app.config.Provider.RequestTimeout,
	})
	app.provider.SetMetrics(app.metrics)

	app.rotator = rotation.NewRotator(app.config.Provider.APIKeys, app.storage, app.notification)
	app.rotator.SetMetrics(app.metrics)

	app.logger.WithField("pool_size", app.rotator.PoolSize()).Info("Provider client initialized")
}

// initializeIngestor initializes the swap ingestor
func (app *Application) initializeIngestor() {
	app.ingestor = ingest.NewIngestor(
		&ingest.Config{Window: app.config.Tracker.IngestWindow},
		app.provider,
		app.rotator,
		app.storage,
		app.notification,
		app.metrics,
	)
}

// initializeScheduler initializes the polling scheduler
func (app *Application) initializeScheduler() {
	app.scheduler = scheduler.NewScheduler(
		&scheduler.Config{
			PollInterval:    app.config.Tracker.PollInterval,
			CursorResetTime: app.config.Tracker.CursorResetTime,
			SweepInterval:   app.config.Tracker.SweepInterval,
		},
		app.ingestor,
		app.storage,
		app.rotator,
		app.notification,
	)
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() {
	serverCfg := &server.ServerConfig{
		Port:              app.config.Server.Port,
		Host:              app.config.Server.Host,
		ReadTimeout:       app.config.Server.ReadTimeout,
		WriteTimeout:      app.config.Server.WriteTimeout,
		EnableMetrics:     app.config.Server.EnableMetrics,
		EnableHealth:      app.config.Server.EnableHealth,
		TransactionsLimit: app.config.Tracker.TransactionsLimit,
	}

	app.server = server.NewHTTPServer(serverCfg, app.storage, app.provider,
		app.rotator, app.scheduler, app.hub, app.metrics)
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting wallet tracker")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := app.scheduler.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"poll_interval":  app.config.Tracker.PollInterval,
		"pool_size":      app.rotator.PoolSize(),
	}).Info("Wallet tracker started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping wallet tracker")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.scheduler != nil {
		if err := app.scheduler.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop scheduler")
		}
	}

	if app.notification != nil {
		if err := app.notification.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close notification channels")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	app.logger.Info("Wallet tracker stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "wallet-tracker",
	Short:   "Multi-chain wallet activity tracker",
	Long:    `Polls swap activity for a directory of tracked wallets across chains, persists deduplicated transactions, and broadcasts them to live subscribers.`,
	Version: AppVersion,
	RunE:    runTracker,
}

// runTracker is the main command to run the tracker
func runTracker(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Wallet Tracker %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Provider: %s\n", cfg.Provider.BaseURL)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("API keys: %d\n", len(cfg.Provider.APIKeys))

		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing wallet tracker connectivity...")

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("✓ Storage connection successful")

		if len(cfg.Provider.APIKeys) == 0 {
			return fmt.Errorf("no API keys configured, set MORALIS_API_1..N")
		}
		fmt.Printf("✓ Credential pool loaded (%d keys)\n", len(cfg.Provider.APIKeys))

		if cfg.Notifications.EnableRedis {
			fmt.Printf("Testing redis connection (%s)...\n", cfg.Notifications.RedisAddr)
			publisher := notification.NewRedisPublisher(&notification.RedisConfig{
				Addr:     cfg.Notifications.RedisAddr,
				Password: cfg.Notifications.RedisPassword,
				DB:       cfg.Notifications.RedisDB,
				Channel:  cfg.Notifications.RedisChannel,
			})
			defer publisher.Close()
			if err := publisher.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			fmt.Println("✓ Redis connection successful")
		}

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
