package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timzifer/mistpanel/config"
	"github.com/timzifer/mistpanel/controller"
	"github.com/timzifer/mistpanel/internal/logging"
	"github.com/timzifer/mistpanel/internal/reload"
	"github.com/timzifer/mistpanel/panel"
	"github.com/timzifer/mistpanel/publish"
	"github.com/timzifer/mistpanel/telemetry"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	healthcheck := flag.Bool("healthcheck", false, "Query the running panel's health endpoint and exit")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	flag.Parse()

	if *healthcheck {
		if err := executeHealthCheck(*cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		os.Exit(executeConfigCheck(cfg))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics, err := newMetrics(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		metrics = noMetrics()
	}

	if cfg.HotReload {
		if err := runWithHotReload(ctx, *cfgPath, cfg, metrics); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Fatal().Err(err).Msg("panel stopped")
		}
		return
	}

	logger, cleanup, err := logging.Setup(cfg.Logging, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	inst, err := start(cfg, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer inst.close()

	if err := inst.ctrl.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("controller stopped with error")
	}
}

// metrics bundles the collector fed by the controller with the gatherer
// exposed on /metrics. Both survive hot reloads.
type metrics struct {
	collector telemetry.Collector
	gatherer  prometheus.Gatherer
}

func noMetrics() metrics {
	return metrics{collector: telemetry.Noop()}
}

func newMetrics(cfg config.TelemetryConfig) (metrics, error) {
	if !cfg.Enabled {
		return noMetrics(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector, err := telemetry.NewPrometheusCollector(registry)
		if err != nil {
			return noMetrics(), err
		}
		return metrics{collector: collector, gatherer: registry}, nil
	default:
		return noMetrics(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}

// instance is one configured generation of the running panel.
type instance struct {
	ctrl      *controller.Controller
	panel     *panel.Server
	publisher *publish.Publisher
}

func start(cfg *config.Config, logger zerolog.Logger, m metrics) (*instance, error) {
	opts := []controller.Option{controller.WithTelemetry(m.collector)}

	inst := &instance{}
	if cfg.MQTT.Enabled {
		pub, err := publish.New(cfg.MQTT, logging.Component(logger, "mqtt"))
		if err != nil {
			return nil, fmt.Errorf("start mqtt publisher: %w", err)
		}
		inst.publisher = pub
		opts = append(opts, controller.WithObserver(pub))
	}

	ctrl, err := controller.New(cfg, logging.Component(logger, "controller"), opts...)
	if err != nil {
		inst.close()
		return nil, err
	}
	inst.ctrl = ctrl

	if !cfg.Panel.Disable {
		srv, err := panel.Start(cfg.Panel.Listen, ctrl, logging.Component(logger, "panel"),
			panel.WithGatherer(m.gatherer),
			panel.WithTitle(cfg.Name),
		)
		if err != nil {
			inst.close()
			return nil, fmt.Errorf("start panel: %w", err)
		}
		inst.panel = srv
	}

	base, _ := cfg.Device.BaseURL()
	logger.Info().
		Str("device", base).
		Str("transport", string(cfg.Device.Transport)).
		Dur("interval", cfg.PollInterval()).
		Msg("mirroring device")
	return inst, nil
}

func (i *instance) close() {
	if i == nil {
		return
	}
	if i.panel != nil {
		i.panel.Close()
	}
	if i.publisher != nil {
		_ = i.publisher.Close()
	}
}

func executeHealthCheck(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := controller.Validate(cfg, zerolog.Nop()); err != nil {
		return err
	}
	if cfg.Panel.Disable {
		return nil
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(healthURL(cfg.Panel.Listen))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("panel health returned %s", resp.Status)
	}
	return nil
}

func healthURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/health"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/health"
}

func executeConfigCheck(cfg *config.Config) int {
	if err := controller.Validate(cfg, zerolog.Nop()); err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		return 1
	}
	base, _ := cfg.Device.BaseURL()
	fmt.Printf("Device: %s (%s, timeout %s)\n", base, cfg.Device.Transport, cfg.Device.Timeout.Duration)
	fmt.Printf("  Commands: power=%s atomizer=%s fan=%s\n", cfg.Device.Commands.System, cfg.Device.Commands.Atomizer, cfg.Device.Commands.Fan)
	fmt.Printf("Poll interval: %s\n", cfg.PollInterval())
	if cfg.Panel.Disable {
		fmt.Println("Panel: disabled")
	} else {
		fmt.Printf("Panel: %s\n", cfg.Panel.Listen)
	}
	if cfg.MQTT.Enabled {
		fmt.Printf("MQTT: %s -> %s\n", cfg.MQTT.Broker, publish.StateTopic(cfg.MQTT.TopicPrefix))
	}
	if len(cfg.Alerts) == 0 {
		fmt.Println("No alerts configured.")
	}
	for _, alert := range cfg.Alerts {
		fmt.Printf("Alert %q\n", alert.ID)
		fmt.Printf("  When: %s\n", alert.When)
		if alert.Message != "" {
			fmt.Printf("  Message: %s\n", alert.Message)
		}
		fmt.Println("  Status: OK")
	}
	fmt.Println("Configuration check completed successfully.")
	return 0
}

func runWithHotReload(ctx context.Context, cfgPath string, initialCfg *config.Config, m metrics) error {
	watcher, err := reload.NewWatcher(initialCfg)
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	cfg := initialCfg
	for {
		logger, cleanup, err := logging.Setup(cfg.Logging, nil)
		if err != nil {
			return err
		}
		log.Logger = logger

		inst, err := start(cfg, logger, m)
		if err != nil {
			cleanup()
			return err
		}

		runCtx, cancelRun := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			errCh <- inst.ctrl.Run(runCtx)
		}()

	loop:
		for {
			select {
			case <-ctx.Done():
				cancelRun()
				err := <-errCh
				inst.close()
				cleanup()
				if err != nil {
					return err
				}
				return ctx.Err()
			case err := <-errCh:
				cancelRun()
				inst.close()
				cleanup()
				return err
			case <-ticker.C:
				if !watcher.Changed() {
					continue
				}
				newCfg, err := config.Load(cfgPath)
				if err == nil {
					err = controller.Validate(newCfg, logger)
				}
				if err != nil {
					logger.Error().Err(err).Msg("reloaded configuration rejected")
					// Wait for the next edit instead of retrying every tick.
					_ = watcher.Update(cfg)
					continue
				}
				if err := watcher.Update(newCfg); err != nil {
					logger.Error().Err(err).Msg("failed to update watcher state")
				}
				m.collector.IncHotReload(watcher.Path())
				if onlyPollIntervalChanged(cfg, newCfg) {
					inst.ctrl.SetInterval(newCfg.PollInterval())
					logger.Info().Dur("interval", newCfg.PollInterval()).Msg("poll interval updated")
					cfg = newCfg
					continue
				}
				cancelRun()
				if err := <-errCh; err != nil {
					logger.Error().Err(err).Msg("controller stopped during reload")
				}
				inst.close()
				cleanup()
				cfg = newCfg
				break loop
			}
		}
	}
}

// onlyPollIntervalChanged reports whether next differs from current in
// nothing but the poll cadence, which a running controller can adopt without
// losing its mirrored state.
func onlyPollIntervalChanged(current, next *config.Config) bool {
	if current == nil || next == nil {
		return false
	}
	a, b := *current, *next
	a.Poll, b.Poll = config.PollConfig{}, config.PollConfig{}
	return reflect.DeepEqual(a, b)
}
