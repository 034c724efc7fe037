package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"homeguard/internal/api"
	"homeguard/internal/clock"
	"homeguard/internal/config"
	"homeguard/internal/eventlog"
	"homeguard/internal/journal"
	"homeguard/internal/logging"
	"homeguard/internal/notify"
	"homeguard/internal/push"
	"homeguard/internal/telemetry"

	"github.com/google/uuid"
)

const shutdownTimeout = 10 * time.Second

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable dashboard service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	manager   *Manager
	hub       *api.Hub
	httpSrv   *http.Server
	push      *push.Client
	telemetry *telemetry.Adapter
	announcer *notify.Announcer
	recorder  *journal.Recorder
	readyFlag atomic.Bool
	clock     clock.Clock
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Service.Name, cfg.Log)
	if err != nil {
		return nil, err
	}

	store := eventlog.NewStore(cfg.EventLog.Capacity, clk.Now, uuid.NewString)
	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		manager:  NewManager(cfg, logger, store, clk),
		hub:      api.NewHub(logger),
		clock:    clk,
	}

	if err := service.buildAnnouncer(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildJournal(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.buildChannels()
	service.buildHTTPServer()
	service.wireListeners()

	return service, nil
}

// Run starts channels and HTTP server and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.API.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.announcer != nil {
		s.announcer.Start(runCtx)
	}
	if s.recorder != nil {
		s.recorder.Start(runCtx)
	}
	if s.push != nil {
		s.push.Start(runCtx)
	}
	if s.telemetry != nil {
		if err := s.telemetry.Connect(runCtx); err != nil {
			// paho keeps retrying in background; dashboard stays usable meanwhile.
			s.logger.Error("telemetry connect failed", "error", err.Error())
		}
	}

	s.readyFlag.Store(true)
	s.logger.Info("service started", "mode", string(s.manager.Raw().Mode))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	s.hub.Close()
	if s.push != nil {
		if err := s.push.Close(); err != nil {
			s.logger.Error("push client close failed", "error", err.Error())
			markErr(fmt.Errorf("push client close: %w", err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Close(); err != nil {
			s.logger.Error("telemetry close failed", "error", err.Error())
			markErr(fmt.Errorf("telemetry close: %w", err))
		}
	}
	if err := s.manager.Close(); err != nil {
		markErr(fmt.Errorf("reconciler close: %w", err))
	}
	if s.announcer != nil {
		if err := s.announcer.Close(ctx); err != nil {
			s.logger.Error("announcer drain failed", "error", err.Error())
			markErr(fmt.Errorf("announcer close: %w", err))
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Close(ctx); err != nil {
			s.logger.Error("journal close failed", "error", err.Error())
			markErr(fmt.Errorf("journal close: %w", err))
		}
	}
	s.logger.Info("service stopped")
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
func (s *Service) cleanupInitResources() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.recorder != nil {
		_ = s.recorder.Close(ctx)
		s.recorder = nil
	}
	if s.announcer != nil {
		_ = s.announcer.Close(ctx)
		s.announcer = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildAnnouncer creates outbound announcement queue when any channel is enabled.
func (s *Service) buildAnnouncer() error {
	dispatcher, err := notify.NewDispatcher(s.cfg.Announce, s.logger)
	if err != nil {
		return err
	}
	if len(dispatcher.Channels()) == 0 {
		return nil
	}
	s.announcer = notify.NewAnnouncer(dispatcher, s.cfg.Announce.QueueSize, s.logger)
	s.logger.Info("announcements enabled", "channels", dispatcher.Channels())
	return nil
}

// buildJournal opens configured journal backend.
func (s *Service) buildJournal() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	sink, err := journal.OpenSink(ctx, s.cfg.Journal)
	if err != nil {
		return err
	}
	if sink == nil {
		return nil
	}
	s.recorder = journal.NewRecorder(sink, s.cfg.Journal.QueueSize, s.clock.Now, s.logger)
	s.logger.Info("journal enabled", "backend", s.cfg.Journal.Backend)
	return nil
}

// buildChannels creates push and telemetry adapters feeding the reconciler.
func (s *Service) buildChannels() {
	if s.cfg.Push.Enabled {
		s.push = push.NewClient(s.cfg.Push, s.manager, s.logger)
		s.manager.SetPushEmitter(s.push)
	}
	if s.cfg.Telemetry.Enabled {
		s.telemetry = telemetry.NewAdapter(s.cfg.Telemetry, s.manager, s.logger)
	}
}

// buildHTTPServer wires dashboard API and health endpoints.
func (s *Service) buildHTTPServer() {
	server := api.NewServer(s.cfg.API, s.cfg.Camera, s.manager, s.hub, s.readyFlag.Load, s.logger)
	s.httpSrv = &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// wireListeners fans reconciler changes out to hub, buzzer, announcer and journal.
func (s *Service) wireListeners() {
	s.manager.Subscribe(func(change Change) {
		s.hub.Broadcast(api.MessageTypeChange, change)
	})
	if s.telemetry != nil {
		s.manager.Subscribe(func(change Change) {
			s.telemetry.MirrorAlarm(change.State.AlarmActive)
		})
	}
	if s.announcer != nil {
		s.manager.Subscribe(func(change Change) {
			for _, record := range change.Announced {
				_ = s.announcer.Enqueue(record)
			}
		})
	}
	if s.recorder != nil {
		s.manager.Subscribe(func(change Change) {
			for _, record := range change.Appended {
				_ = s.recorder.Record(journal.OpAppend, record)
			}
			for _, record := range change.Replaced {
				_ = s.recorder.Record(journal.OpReplace, record)
			}
		})
	}
}
