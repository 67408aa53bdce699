package netstatus

import (
	"context"
	"log/slog"
	"time"
)

// DefaultProbeInterval is how often the prober checks reachability.
const DefaultProbeInterval = 15 * time.Second

// Pinger checks reachability of the API host. Any HTTP response counts as
// reachable; only transport errors mean offline.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober feeds a Monitor from periodic pings.
type Prober struct {
	monitor  *Monitor
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

// NewProber creates a prober. interval <= 0 uses DefaultProbeInterval.
func NewProber(monitor *Monitor, pinger Pinger, interval time.Duration, logger *slog.Logger) *Prober {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Prober{monitor: monitor, pinger: pinger, interval: interval, timeout: timeout, log: logger}
}

// Probe pings once and updates the monitor. It returns the observed state.
func (p *Prober) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.pinger.Ping(pctx)
	if err != nil {
		p.log.Debug("netstatus: probe failed", "err", err)
	}
	online := err == nil
	p.monitor.SetOnline(online)
	return online
}

// Run probes immediately and then every interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
