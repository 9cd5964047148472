package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"stealthgate/internal/engine/behavior"
	"stealthgate/internal/engine/breaker"
	"stealthgate/internal/engine/controller"
	"stealthgate/internal/engine/fingerprint"
	"stealthgate/internal/engine/identity"
	"stealthgate/internal/engine/ratelimit"
	"stealthgate/internal/service/web"
	"stealthgate/internal/shared/config"
	"stealthgate/internal/shared/logger"
	"stealthgate/internal/shared/types"
	"stealthgate/internal/storage"
)

// AppServer owns the engine's lifecycle: it wires configuration into the
// controller, runs the snapshot loop and the status web service, and handles
// reloads and shutdown signals.
type AppServer struct {
	cfg       *types.Config
	configDir string

	controller *controller.Controller
	simulator  *behavior.Simulator
	hub        *web.Hub
	recorder   storage.Recorder
	webServer  *http.Server

	waitGroup sync.WaitGroup
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// New wires an AppServer from the loaded behavior configuration and the data
// files found in configDir.
func New(cfg *types.Config, configDir string) (*AppServer, error) {
	l := logger.WithComponent("App")

	budget := ratelimit.New(ratelimit.Config{Classes: budgetClasses(cfg)})

	breakers := breaker.NewGroup(breaker.Config{
		FailureThreshold: cfg.BreakerConf.FailureThreshold,
		ResetTimeout:     seconds(cfg.BreakerConf.ResetTimeoutSeconds),
		MaxBackoff:       seconds(cfg.BreakerConf.MaxBackoffSeconds),
	})

	proxyPool := identity.New("proxy", identity.Config{
		Strategy:         identity.Strategy(cfg.ProxyConf.RotationStrategy),
		FailureThreshold: cfg.ProxyConf.FailureThreshold,
		CoolDown:         seconds(cfg.ProxyConf.CoolDownSeconds),
		MaxCoolDown:      seconds(cfg.ProxyConf.MaxCoolDownSeconds),
		Validate:         identity.ProxyValidator(),
	})

	uaPool := identity.New("user_agent", identity.Config{
		Strategy:         identity.Strategy(cfg.UserAgentConf.RotationStrategy),
		FailureThreshold: cfg.UserAgentConf.FailureThreshold,
		CoolDown:         seconds(cfg.UserAgentConf.CoolDownSeconds),
		MaxCoolDown:      seconds(cfg.UserAgentConf.MaxCoolDownSeconds),
		Validate: identity.UserAgentValidator(
			cfg.UserAgentConf.MinLength,
			cfg.UserAgentConf.MaxLength,
			splitCSV(cfg.UserAgentConf.RequiredSubstrings),
		),
	})

	tables, err := config.LoadFingerprintTables(filepath.Join(configDir, "fingerprint.json"))
	if err != nil {
		return nil, err
	}
	fingerprints := fingerprint.NewGenerator(fingerprint.Config{
		TTL:    seconds(cfg.FingerprintConf.CacheTTLSeconds),
		Tables: fingerprint.TablesFrom(tables),
	})

	s := &AppServer{
		cfg:       cfg,
		configDir: configDir,
		controller: controller.New(controller.Config{
			Budget:       budget,
			Breakers:     breakers,
			Proxies:      proxyPool,
			UserAgents:   uaPool,
			Fingerprints: fingerprints,
			RetryBase:    time.Duration(cfg.RetryConf.BaseBackoffMs) * time.Millisecond,
			RetryMax:     time.Duration(cfg.RetryConf.MaxBackoffMs) * time.Millisecond,
		}),
		simulator: behavior.New(behaviorRanges(cfg)),
		hub:       web.NewHub(),
		stopChan:  make(chan struct{}),
	}

	if err := s.loadEntries(proxyPool, uaPool); err != nil {
		return nil, err
	}

	if cfg.SnapshotConf.Path != "" {
		recorder, err := storage.NewFileRecorder(cfg.SnapshotConf.Path)
		if err != nil {
			return nil, err
		}
		s.recorder = recorder
	}

	l.Info().
		Int("proxies", proxyPool.Len()).
		Int("user_agents", uaPool.Len()).
		Msg("Engine wired.")
	return s, nil
}

// Controller exposes the request controller to embedding crawlers.
func (s *AppServer) Controller() *controller.Controller {
	return s.controller
}

// Simulator exposes the behavior simulator to embedding crawlers.
func (s *AppServer) Simulator() *behavior.Simulator {
	return s.simulator
}

// Run starts the background services and blocks until a termination signal.
func (s *AppServer) Run() {
	l := logger.WithComponent("App")

	go s.hub.Run()
	s.webServer = web.StartServer(&s.waitGroup, s.cfg.WebConf, s.controller, s.hub)

	s.waitGroup.Add(1)
	go s.snapshotLoop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			if err := s.Reload(); err != nil {
				l.Error().Err(err).Msg("Reload failed, keeping previous state.")
			}
			continue
		}
		l.Info().Str("signal", sig.String()).Msg("Shutting down.")
		s.Stop()
		return
	}
}

// snapshotLoop periodically records and broadcasts the engine snapshot.
func (s *AppServer) snapshotLoop() {
	defer s.waitGroup.Done()
	l := logger.WithComponent("App")

	interval := seconds(s.cfg.SnapshotConf.IntervalSeconds)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := s.controller.Snapshot()
			s.hub.BroadcastSnapshot(snap)
			if s.recorder != nil {
				if err := s.recorder.Record(snap); err != nil {
					l.Warn().Err(err).Msg("Failed to record snapshot.")
				}
			}
		case <-s.stopChan:
			return
		}
	}
}

// Reload rebuilds the engine from the data files on disk: fresh entries for
// both pools, budgets and breakers reset, fingerprint cache flushed.
func (s *AppServer) Reload() error {
	l := logger.WithComponent("App")
	l.Info().Msg("Configuration reload triggered.")

	proxies, err := config.LoadProxies(filepath.Join(s.configDir, "proxies.json"))
	if err != nil {
		return err
	}
	agents, err := config.LoadUserAgents(filepath.Join(s.configDir, "user_agents.json"))
	if err != nil {
		return err
	}

	proxyRes, uaRes := s.controller.Reload(proxyEntries(proxies), userAgentEntries(agents))
	l.Info().
		Int("proxies_accepted", proxyRes.Accepted).
		Int("proxies_rejected", proxyRes.Rejected).
		Int("user_agents_accepted", uaRes.Accepted).
		Int("user_agents_rejected", uaRes.Rejected).
		Msg("Reload complete.")
	return nil
}

// Stop shuts down the background services. The web server must be shut down
// before waiting on the group or its serving goroutine never exits.
func (s *AppServer) Stop() {
	s.stopOnce.Do(func() {
		l := logger.WithComponent("App")
		close(s.stopChan)
		if s.webServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.webServer.Shutdown(ctx); err != nil {
				l.Warn().Err(err).Msg("Status web service shutdown failed.")
			}
			cancel()
		}
		s.waitGroup.Wait()
		if s.recorder != nil {
			if err := s.recorder.Close(); err != nil {
				l.Warn().Err(err).Msg("Failed to close snapshot recorder.")
			}
		}
		l.Info().Msg("Engine stopped.")
	})
}

func (s *AppServer) loadEntries(proxyPool, uaPool *identity.Pool) error {
	proxies, err := config.LoadProxies(filepath.Join(s.configDir, "proxies.json"))
	if err != nil {
		return err
	}
	agents, err := config.LoadUserAgents(filepath.Join(s.configDir, "user_agents.json"))
	if err != nil {
		return err
	}
	proxyPool.Load(proxyEntries(proxies))
	uaPool.Load(userAgentEntries(agents))
	return nil
}
