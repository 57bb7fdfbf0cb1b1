package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/neilk/octowatch/internal/logging"
	"github.com/neilk/octowatch/internal/octopus"
	"github.com/neilk/octowatch/internal/publish"
	"github.com/neilk/octowatch/internal/store"
	"github.com/neilk/octowatch/internal/track"
	"github.com/neilk/octowatch/internal/uiapi"
)

// csvExportSchedule fires after the evening rate publication so the export
// covers the finalized day. Interpreted in UTC.
const csvExportSchedule = "0 18 * * *"

func main() {
	var cfgFile string
	var port int
	var dbPath string

	rootCmd := &cobra.Command{
		Use:   "octowatchd",
		Short: "Octowatch daemon - tariff tracking, charge decisions and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			godotenv.Load()

			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
			} else {
				home, _ := os.UserHomeDir()
				viper.AddConfigPath(filepath.Join(home, ".octowatch"))
				viper.SetConfigName("config")
				viper.SetConfigType("yaml")
			}
			viper.SetEnvPrefix("octowatch")
			viper.AutomaticEnv()
			if err := viper.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return fmt.Errorf("reading config: %w", err)
				}
			}
			viper.SetDefault("timezone", "Europe/London")
			viper.SetDefault("interval_seconds", 60)
			viper.SetDefault("fetch_timeout_seconds", 30)
			viper.SetDefault("log_level", "info")

			if dbPath == "" {
				dbPath = viper.GetString("db")
			}
			if dbPath == "" {
				home, _ := os.UserHomeDir()
				dbPath = filepath.Join(home, ".octowatch", "octowatch.db")
			}
			os.MkdirAll(filepath.Dir(dbPath), 0755)

			return run(port, dbPath)
		},
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.octowatch/config.yaml)")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "database path (default is $HOME/.octowatch/octowatch.db)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(port int, dbPath string) error {
	log, err := logging.New(viper.GetString("log_level"))
	if err != nil {
		return err
	}
	defer log.Sync()

	loc, err := time.LoadLocation(viper.GetString("timezone"))
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}

	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	fetchTimeout := time.Duration(viper.GetInt("fetch_timeout_seconds")) * time.Second
	client := octopus.NewClient(octopus.Config{
		Product: viper.GetString("product"),
		APIKey:  viper.GetString("api_key"),
		Timeout: fetchTimeout,
	})

	tracker := &track.Tracker{
		Registry:  track.NewRegistry(),
		Source:    client,
		Store:     st,
		Location:  loc,
		Log:       log,
		Interval:  time.Duration(viper.GetInt("interval_seconds")) * time.Second,
		Timeout:   fetchTimeout,
		ExportDir: viper.GetString("export_dir"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := registerEntities(ctx, tracker); err != nil {
		return err
	}
	log.Info("entities registered", zap.Int("count", len(tracker.Registry.IDs())))

	// Mirror state changes to MQTT when a broker is configured.
	if broker := viper.GetString("mqtt.broker"); broker != "" {
		pub, err := publish.New(publish.Config{
			BrokerURL:   broker,
			ClientID:    viper.GetString("mqtt.client_id"),
			Username:    viper.GetString("mqtt.username"),
			Password:    viper.GetString("mqtt.password"),
			TopicPrefix: viper.GetString("mqtt.topic_prefix"),
			Retain:      viper.GetBool("mqtt.retain"),
		}, log)
		if err != nil {
			return fmt.Errorf("connecting mqtt: %w", err)
		}
		defer pub.Close()
		go pub.Run(ctx, st.Changes())
		log.Info("mqtt publisher started", zap.String("broker", broker))
	}

	sched := cron.New(cron.WithLocation(time.UTC))
	if tracker.ExportDir != "" {
		if _, err := sched.AddFunc(csvExportSchedule, tracker.ExportRates); err != nil {
			return fmt.Errorf("scheduling export: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: uiapi.NewServer(tracker.Registry, st, tracker, log).Router(),
	}
	go func() {
		log.Info("http server starting", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	err = tracker.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("tracker stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("shut down cleanly")
	return nil
}

// registerEntities builds every configured entity. Tariffs go first so
// charge and consumption links resolve within the same start-up pass.
func registerEntities(ctx context.Context, tracker *track.Tracker) error {
	var tariffs []track.TariffConfig
	if err := viper.UnmarshalKey("tariffs", &tariffs); err != nil {
		return fmt.Errorf("parsing tariffs: %w", err)
	}
	for _, cfg := range tariffs {
		if err := tracker.AddTariff(ctx, cfg); err != nil {
			return fmt.Errorf("tariff %q: %w", cfg.ID, err)
		}
	}

	var charges []track.ChargeConfig
	if err := viper.UnmarshalKey("charges", &charges); err != nil {
		return fmt.Errorf("parsing charges: %w", err)
	}
	for _, cfg := range charges {
		if err := tracker.AddCharge(cfg); err != nil {
			return fmt.Errorf("charge %q: %w", cfg.ID, err)
		}
	}

	var consumptions []track.ConsumptionConfig
	if err := viper.UnmarshalKey("consumption", &consumptions); err != nil {
		return fmt.Errorf("parsing consumption: %w", err)
	}
	for _, cfg := range consumptions {
		if err := tracker.AddConsumption(cfg); err != nil {
			return fmt.Errorf("consumption %q: %w", cfg.ID, err)
		}
	}
	return nil
}
