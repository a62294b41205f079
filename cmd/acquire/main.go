// cmd/acquire/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tamzrod/modbus-acquisition/internal/buffer"
	"github.com/tamzrod/modbus-acquisition/internal/config"
	"github.com/tamzrod/modbus-acquisition/internal/consumer"
	"github.com/tamzrod/modbus-acquisition/internal/logger"
	"github.com/tamzrod/modbus-acquisition/internal/poller"
	"github.com/tamzrod/modbus-acquisition/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "acquire.yaml", "Path to configuration file")
	envFile := flag.String("env-file", ".env", "Optional KEY=VALUE file applied before ACQ_* overrides")
	validateOnly := flag.Bool("validate-config", false, "Validate configuration file and exit")
	flag.Parse()

	// --------------------
	// Load + validate config
	// --------------------

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if *validateOnly {
		fmt.Println("configuration is valid")
		return
	}

	if err := logger.Initialize(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info().
		Str("config", *configPath).
		Int("buses", len(cfg.Buses)).
		Int("capacity", cfg.Buffer.Capacity).
		Msg("starting acquisition")

	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("acquisition stopped with error")
		logger.Close()
		os.Exit(1)
	}
	logger.Info().Msg("acquisition stopped")
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	buf := buffer.New(cfg.Buffer.Capacity)

	// --------------------
	// Build per-bus pollers
	// --------------------

	pollers := make([]*poller.Poller, 0, len(cfg.Buses))
	buses := make([]server.Bus, 0, len(cfg.Buses))
	for _, b := range cfg.Buses {
		p, err := poller.Build(b, buf, logger.Component("poller"))
		if err != nil {
			return fmt.Errorf("poller build failed (bus=%s): %w", b.Name, err)
		}
		pollers = append(pollers, p)
		buses = append(buses, p)
	}

	// --------------------
	// Consumers
	// --------------------

	type scheduled struct {
		c        consumer.Consumer
		interval time.Duration
	}
	consumers := []scheduled{{
		c:        consumer.NewRateReporter(cfg.Consumers.Rates.Window, logger.Component("rates")),
		interval: cfg.Consumers.Rates.Interval,
	}}

	if m := cfg.Consumers.MQTT; m.Enabled {
		pub, err := consumer.NewMQTTPublisher(consumer.MQTTConfig{
			Broker:      m.Broker,
			ClientID:    m.ClientID,
			Username:    m.Username,
			Password:    m.Password,
			TopicPrefix: m.TopicPrefix,
			QoS:         m.QoS,
		}, logger.Component("mqtt"))
		if err != nil {
			// telemetry is optional; acquisition runs without it
			logger.Warn().Err(err).Msg("mqtt publisher disabled")
		} else {
			defer pub.Close()
			consumers = append(consumers, scheduled{c: pub, interval: m.Interval})
		}
	}

	// --------------------
	// Start
	// --------------------

	var wg sync.WaitGroup

	for _, p := range pollers {
		wg.Add(1)
		go func(p *poller.Poller) {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				logger.Error().Err(err).Str("bus", p.Bus()).Msg("poller exited")
			}
		}(p)
	}

	for _, s := range consumers {
		wg.Add(1)
		go func(s scheduled) {
			defer wg.Done()
			consumer.Run(ctx, s.interval, buf, s.c, logger.Component("consumer"))
		}(s)
	}

	srv := server.New(cfg.HTTP.Listen, cfg.HTTP.RateLimit, cfg.HTTP.Burst, buses, buf, logger.Component("http"))
	srvErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		srvErr <- srv.ListenAndServe()
	}()

	// --------------------
	// Wait + shutdown
	// --------------------

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-srvErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
		cancel()
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	// pollers disconnect their links before their goroutines exit
	wg.Wait()
	return runErr
}
