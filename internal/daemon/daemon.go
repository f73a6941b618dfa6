// Package daemon wires the imeswitchd components together: configuration,
// the surface registry, the platform switcher, the IPC server, and the
// switch history store.
package daemon

import (
	"context"
	"fmt"
	"time"

	"imeswitchd/internal/config"
	"imeswitchd/internal/history"
	"imeswitchd/internal/ipc"
	"imeswitchd/internal/logging"
	"imeswitchd/internal/session"
	"imeswitchd/internal/switcher"
)

// Daemon is one running imeswitchd instance.
type Daemon struct {
	version string

	log      *logging.Logger
	loader   *config.Loader
	registry *session.Registry
	server   *ipc.Server
	store    *history.Store
	sw       switcher.Switcher

	startedAt time.Time
	pidFile   string
}

// New assembles a daemon from a loaded configuration. The loader may be
// nil; hot reload is skipped then.
func New(cfg *config.Config, loader *config.Loader, version string, log *logging.Logger) (*Daemon, error) {
	sw := switcher.New(cfg)

	d := &Daemon{
		version: version,
		log:     log,
		loader:  loader,
		sw:      sw,
		pidFile: cfg.Daemon.PidFile,
	}

	d.registry = session.NewRegistry(cfg, sw, log.WithComponent("session").Logger)

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		d.store = store
		d.registry.SetRecordCallback(d.recordDecision)
	}

	d.server = ipc.NewServer(cfg.IPC, &handler{d: d}, log.WithComponent("ipc").Logger)
	return d, nil
}

// recordDecision persists one decision cycle outcome.
func (d *Daemon) recordDecision(rec session.SwitchRecord) {
	if rec.Decision.Suppressed() {
		if err := d.store.BumpSuppression(rec.Decision.String()); err != nil {
			d.log.Warn("record suppression", "error", err)
		}
		return
	}
	_, err := d.store.RecordSwitch(&history.Entry{
		TimestampNs: rec.At.UnixNano(),
		SurfaceID:   rec.SurfaceID,
		Language:    rec.Language,
		Region:      rec.Region.String(),
		Target:      rec.Target.String(),
		Decision:    rec.Decision.String(),
		Confidence:  rec.Confidence,
	})
	if err != nil {
		d.log.Warn("record switch", "error", err)
	}
}

// Start brings the daemon up: PID file, IPC server, event fan-out, config
// watching, and history retention.
func (d *Daemon) Start(ctx context.Context) error {
	cfg := d.registry.Config()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("create state directories: %w", err)
	}
	if d.pidFile != "" {
		if err := writePidFile(d.pidFile); err != nil {
			return err
		}
	}

	if err := d.server.Start(); err != nil {
		removePidFile(d.pidFile)
		return err
	}
	d.startedAt = time.Now()

	go d.forwardEvents(d.registry.Subscribe())

	if d.loader != nil {
		d.loader.OnChange(func(next *config.Config) {
			d.registry.SetConfig(next)
		})
		if err := d.loader.Watch(); err != nil {
			d.log.Warn("config watch unavailable", "error", err)
		}
	}

	if d.store != nil && cfg.History.RetentionDays > 0 {
		go d.retentionLoop(ctx, cfg.History.RetentionDays)
	}

	d.log.Info("daemon started",
		"version", d.version,
		"backend", d.sw.Name(),
		"backend_available", d.sw.Available())
	return nil
}

// Run starts the daemon and blocks until the context is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return d.Stop()
}

// Stop shuts everything down in reverse order of Start.
func (d *Daemon) Stop() error {
	d.log.Info("daemon stopping")

	if d.loader != nil {
		d.loader.Close()
	}
	err := d.server.Stop()
	d.registry.Close()
	if d.store != nil {
		d.store.Close()
	}
	removePidFile(d.pidFile)
	return err
}

// forwardEvents republishes registry notifications to IPC subscribers.
func (d *Daemon) forwardEvents(events <-chan session.Notification) {
	for n := range events {
		var env *ipc.Envelope
		var err error

		switch n.Type {
		case session.ModeChanged:
			env, err = ipc.NewEnvelope(ipc.TypeModeChanged, 0, &ipc.ModeChangedEvent{
				SurfaceID:  n.SurfaceID,
				Mode:       n.Mode.String(),
				Region:     n.Region.String(),
				Confidence: n.Confidence,
				Timestamp:  n.Timestamp,
			})
		case session.FocusChanged:
			env, err = ipc.NewEnvelope(ipc.TypeFocusEvent, 0, &ipc.FocusChangedEvent{
				SurfaceID: n.SurfaceID,
				Focused:   n.Focused,
				Timestamp: n.Timestamp,
			})
		case session.SwitchFailed:
			msg := ""
			if n.Err != nil {
				msg = n.Err.Error()
			}
			env, err = ipc.NewEnvelope(ipc.TypeSwitchFailed, 0, &ipc.SwitchFailedEvent{
				SurfaceID: n.SurfaceID,
				Mode:      n.Mode.String(),
				Error:     msg,
				Timestamp: n.Timestamp,
			})
		default:
			continue
		}
		if err != nil {
			continue
		}
		d.server.Publish(env)
	}
}

// retentionLoop prunes old history entries once a day.
func (d *Daemon) retentionLoop(ctx context.Context, retentionDays int) {
	prune := func() {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		if n, err := d.store.Prune(cutoff); err != nil {
			d.log.Warn("prune history", "error", err)
		} else if n > 0 {
			d.log.Info("pruned history", "removed", n)
		}
	}
	prune()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// status builds the status reply served over IPC.
func (d *Daemon) status() *ipc.StatusReply {
	surfaces := d.registry.Snapshot()
	infos := make([]ipc.SurfaceInfo, 0, len(surfaces))
	for _, s := range surfaces {
		infos = append(infos, ipc.SurfaceInfo{
			ID:          s.ID,
			App:         s.App,
			Language:    s.Language,
			Focused:     s.Focused,
			OpenedAt:    s.OpenedAt,
			LogicalMode: s.LogicalMode.String(),
			LastRegion:  s.LastRegion.String(),
			Cycles:      s.Cycles,
		})
	}

	return &ipc.StatusReply{
		Version:      d.version,
		StartedAt:    d.startedAt,
		UptimeSec:    int64(time.Since(d.startedAt).Seconds()),
		Enabled:      d.registry.Enabled(),
		Backend:      d.sw.Name(),
		Available:    d.sw.Available(),
		Surfaces:     infos,
		Suppressions: d.registry.SuppressionCounts(),
	}
}

// recentHistory serves the history IPC request.
func (d *Daemon) recentHistory(limit int) (*ipc.HistoryReply, error) {
	if d.store == nil {
		return nil, fmt.Errorf("history is disabled")
	}
	entries, err := d.store.Recent(limit)
	if err != nil {
		return nil, err
	}

	reply := &ipc.HistoryReply{Entries: make([]ipc.HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		reply.Entries = append(reply.Entries, ipc.HistoryEntry{
			Timestamp:  time.Unix(0, e.TimestampNs),
			SurfaceID:  e.SurfaceID,
			Language:   e.Language,
			Region:     e.Region,
			Target:     e.Target,
			Decision:   e.Decision,
			Confidence: e.Confidence,
		})
	}
	return reply, nil
}
