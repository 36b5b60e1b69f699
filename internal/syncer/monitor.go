package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Pinger reports whether the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor keeps the cache's online flag in step with the backend and
// syncs when connectivity comes back. With a non-zero SyncInterval it also
// syncs periodically while online.
type Monitor struct {
	pinger        Pinger
	cache         syncCache
	sync          func(ctx context.Context) error
	probeInterval time.Duration
	syncInterval  time.Duration
	logger        *slog.Logger
}

func NewMonitor(s *Syncer, pinger Pinger, probeInterval, syncInterval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		pinger: pinger,
		cache:  s.cache,
		sync: func(ctx context.Context) error {
			_, err := s.Sync(ctx)
			return err
		},
		probeInterval: probeInterval,
		syncInterval:  syncInterval,
		logger:        logger,
	}
}

// Run probes until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	probe := time.NewTicker(m.probeInterval)
	defer probe.Stop()

	var periodic <-chan time.Time
	if m.syncInterval > 0 {
		t := time.NewTicker(m.syncInterval)
		defer t.Stop()
		periodic = t.C
	}

	m.logger.Info("connectivity monitor started", "probe_interval", m.probeInterval, "sync_interval", m.syncInterval)
	m.Probe(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-probe.C:
			m.Probe(ctx)
		case <-periodic:
			if m.cache.Online() {
				m.runSync(ctx)
			}
		}
	}
}

// Probe pings once, updates the online flag, and syncs on an
// offline-to-online transition.
func (m *Monitor) Probe(ctx context.Context) {
	err := m.pinger.Ping(ctx)
	if ctx.Err() != nil {
		return
	}
	online := err == nil
	if err != nil {
		m.logger.Debug("backend probe failed", "error", err)
	}
	if m.cache.SetOnline(online) && online {
		m.runSync(ctx)
	}
}

func (m *Monitor) runSync(ctx context.Context) {
	if err := m.sync(ctx); err != nil && !errors.Is(err, ErrInProgress) {
		m.logger.Warn("background sync failed", "error", err)
	}
}
