package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sweeney/msim-telephony/internal/config"
	"github.com/sweeney/msim-telephony/internal/coordinator"
	"github.com/sweeney/msim-telephony/internal/metrics"
	"github.com/sweeney/msim-telephony/internal/notify"
	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/registry"
	"github.com/sweeney/msim-telephony/internal/sched"
	"github.com/sweeney/msim-telephony/internal/store"
	"github.com/sweeney/msim-telephony/internal/tone"
	"github.com/sweeney/msim-telephony/internal/xdivert"
)

func main() {
	configPath := flag.String("config", "/etc/msimd/msimd.yaml", "Path to config file")
	envFile := flag.String("env", ".env", "Optional dotenv file loaded before the environment overlay")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	lvl, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "redis":
		return store.OpenRedis(store.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		})
	default:
		return store.OpenSQLite(cfg.Path)
	}
}

func coordinatorSettings(cfg *config.Config) coordinator.Settings {
	return coordinator.Settings{
		DefaultSubscription: phone.Subscription(cfg.Subscriptions.Default),
		AutoRetry:           cfg.Calls.AutoRetry,
		EmergencyTone:       cfg.EmergencyTonePolicy(),
		CallerInfoTimeout:   cfg.Calls.CallerInfoTimeout,
		CallEndedDelay:      cfg.Calls.CallEndedDelay,
		CallWaitingDisplay:  cfg.Calls.CallWaitingDisplay,
		VoicemailRetryLimit: cfg.Voicemail.RetryLimit,
		VoicemailRetryDelay: cfg.Voicemail.RetryDelay,
	}
}

// accessibilityPayload carries settings the daemon passes through to the
// in-call UI without acting on them.
type accessibilityPayload struct {
	TTYMode string `json:"tty_mode"`
	HAC     bool   `json:"hac"`
}

func publishAccessibility(ctx context.Context, pub notify.Publisher, cfg *config.Config) error {
	data, err := json.Marshal(accessibilityPayload{TTYMode: cfg.Calls.TTYMode, HAC: cfg.Calls.HAC})
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	return pub.Publish(ctx, notify.Message{Topic: cfg.MQTT.TopicPrefix + "/settings", Payload: data, Retained: true})
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m := metrics.New()

	st, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	pub, err := notify.NewMQTTPublisher(notify.MQTTOptions{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		QoS:         1,
		StatusTopic: cfg.MQTT.TopicPrefix + "/status",
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer pub.Close()

	if err := publishAccessibility(ctx, pub, cfg); err != nil {
		logger.Warn("publishing settings failed", "error", err)
	}

	proj := notify.NewProjector(pub, cfg.MQTT.TopicPrefix)
	plat := newPlatform(cfg.PhoneTypes(), cfg.Platform.EmergencyNumbers, logger)

	reg, err := registry.New(plat.handles(), registry.WithLogger(logger))
	if err != nil {
		return err
	}
	clock := sched.Real{}
	tones := tone.NewPool(tone.NewTimedBackend(plat, clock), reg,
		tone.WithLogger(logger), tone.WithScheduler(clock), tone.WithMetrics(m))

	coord, err := coordinator.New(reg, tones, proj, plat, plat,
		coordinator.WithSettings(coordinatorSettings(cfg)),
		coordinator.WithScheduler(clock),
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	b := &bridge{platform: plat, events: coord, metrics: m, logger: logger}

	var xd *xdivert.Syncer
	if reg.Count() == 2 {
		xd, err = xdivert.New(plat, plat, st, proj, xdivert.WithLogger(logger), xdivert.WithMetrics(m))
		if err != nil {
			return err
		}
		b.ready = func(ctx context.Context) {
			if err := xd.Reconcile(ctx); err != nil {
				logger.Error("xdivert reconcile failed", "error", err)
			}
		}
		go xd.Run(ctx)
	}

	var xdSvc xdivertService
	if xd != nil {
		xdSvc = xd
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           newStatusServer(coord, xdSvc, plat.connected, m.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", "error", err)
		}
	}()

	coordDone := make(chan error, 1)
	go func() { coordDone <- coord.Run(ctx) }()

	b.run(ctx, cfg.Platform.Addr(), cfg.Platform.ReconnectInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown", "error", err)
	}
	return <-coordDone
}
