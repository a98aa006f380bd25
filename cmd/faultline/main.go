// cmd/faultline/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/faultline/internal/config"
	"github.com/FairForge/faultline/internal/events"
	"github.com/FairForge/faultline/internal/metrics"
	"github.com/FairForge/faultline/internal/ratelimit"
	"github.com/FairForge/faultline/internal/simulation"
	"github.com/FairForge/faultline/internal/stress"
	"github.com/FairForge/faultline/internal/transport"
)

func main() {
	os.Exit(run())
}

// run carries the real work so deferred cleanup survives the exit code.
func run() int {
	scenarioPath := flag.String("scenario", "faultline.yaml", "scenario file to run")
	metricsAddr := flag.String("metrics", "", "address to serve Prometheus metrics on (empty to disable)")
	watch := flag.Bool("watch", false, "reload the scenario file on change")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*scenarioPath)
	if err != nil {
		logger.Fatal("failed to load scenario file", zap.String("path", *scenarioPath), zap.Error(err))
	}
	if cfg.Target.BaseURL == "" {
		logger.Fatal("scenario file does not name a target (set target.base_url or FAULTLINE_TARGET_URL)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	sub := bus.Subscribe()
	go func() {
		for ev := range sub.C {
			logger.Debug("event", zap.String("type", string(ev.Type)), zap.Any("fields", ev.Fields))
		}
	}()
	defer sub.Unsubscribe()

	collector := metrics.NewCollector()
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving metrics", zap.String("addr", *metricsAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	client := transport.NewClient(transport.ClientConfig{
		BaseURL: cfg.Target.BaseURL,
		Timeout: cfg.Target.Timeout.Std(),
	}, logger)

	var tr transport.Transport = client
	simCfg, err := cfg.SimulationSettings()
	if err != nil {
		logger.Fatal("invalid simulation settings", zap.Error(err))
	}

	var rng simulation.Source
	if cfg.Simulation.Seed != 0 {
		rng = simulation.NewSource(cfg.Simulation.Seed)
	}
	sim := simulation.NewSimulator(simCfg, rng, logger, bus, collector)
	if simCfg.Enabled {
		interceptor := simulation.NewInterceptor(sim, client)
		if err := interceptor.Start(); err != nil {
			logger.Fatal("failed to install interceptor", zap.Error(err))
		}
		defer interceptor.Stop()
		sim.Start()
		defer sim.Stop()
		tr = interceptor
		logger.Info("fault injection active",
			zap.Int("scenarios", len(simCfg.Scenarios)),
			zap.String("network_condition", cfg.Simulation.NetworkCondition))
	}

	if *watch {
		watcher, err := config.NewWatcher(*scenarioPath, logger, func(fresh *config.Config) {
			freshSim, err := fresh.SimulationSettings()
			if err != nil {
				logger.Warn("ignoring reloaded simulation settings", zap.Error(err))
				return
			}
			sim.UpdateConfig(freshSim)
		})
		if err != nil {
			logger.Fatal("failed to watch scenario file", zap.Error(err))
		}
		defer func() { _ = watcher.Close() }()
	}

	exitCode := 0
	if len(cfg.Tests) > 0 {
		tester := ratelimit.NewTester(tr, cfg.RateLimitSettings(), logger, bus, collector)
		if cfg.Cooldown.Std() > 0 {
			tester.Cooldown = cfg.Cooldown.Std()
		}
		suite, err := tester.RunSuite(ctx, cfg.Target.Endpoint, cfg.RateLimitTests())
		if err != nil {
			logger.Fatal("suite aborted", zap.Error(err))
		}
		printJSON(suite)
		if suite.Failed > 0 {
			exitCode = 1
		}
	}

	if scenarios := cfg.StressScenarios(); len(scenarios) > 0 {
		runner := stress.NewRunner(tr, cfg.RateLimit.Headers, logger, bus, collector)
		if cfg.Cooldown.Std() > 0 {
			runner.Cooldown = cfg.Cooldown.Std()
		}
		results, err := runner.Run(ctx, cfg.Target.Endpoint, scenarios)
		if err != nil {
			logger.Fatal("stress run aborted", zap.Error(err))
		}
		printJSON(results)
	}

	return exitCode
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode results: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
