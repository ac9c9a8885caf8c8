// Package connectivity decides whether the remote service is reachable. The
// online flag itself lives on the shared session; the monitor is its only
// regular writer.
package connectivity

import (
	"context"
	"log"
	"time"

	"github.com/mrlokans/caresync/internal/events"
	"github.com/mrlokans/caresync/internal/session"
)

const (
	DefaultProbePath     = "/health"
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// Prober checks whether path on the remote service answers at all.
type Prober interface {
	Probe(ctx context.Context, path string, timeout time.Duration) error
}

type Publisher interface {
	Publish(e events.Event)
}

type Config struct {
	ProbePath     string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

type Monitor struct {
	cfg     Config
	session *session.Context
	prober  Prober
	bus     Publisher

	// onOnline runs on every offline -> online transition.
	onOnline func()
}

func NewMonitor(cfg Config, sess *session.Context, prober Prober, bus Publisher) *Monitor {
	if cfg.ProbePath == "" {
		cfg.ProbePath = DefaultProbePath
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	return &Monitor{cfg: cfg, session: sess, prober: prober, bus: bus}
}

// OnOnline sets the drain trigger.
func (m *Monitor) OnOnline(fn func()) {
	m.onOnline = fn
}

func (m *Monitor) IsOnline() bool {
	return m.session.Online()
}

// SetOnline applies a connectivity state, e.g. from the OS or a manual override.
func (m *Monitor) SetOnline(online bool) {
	if !m.session.SetOnline(online) {
		return
	}

	if online {
		log.Println("Connectivity: remote service reachable, going online")
	} else {
		log.Println("Connectivity: remote service unreachable, going offline")
	}

	if m.bus != nil {
		m.bus.Publish(events.Event{Type: events.ConnectivityChanged, Online: online})
	}
	if online && m.onOnline != nil {
		m.onOnline()
	}
}

// Check probes once and applies the result.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.prober.Probe(ctx, m.cfg.ProbePath, m.cfg.ProbeTimeout)
	if err != nil && ctx.Err() != nil {
		// shutting down, not a connectivity signal
		return m.IsOnline()
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	log.Printf("Connectivity: probing %s every %s", m.cfg.ProbePath, m.cfg.ProbeInterval)

	m.Check(ctx)

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
