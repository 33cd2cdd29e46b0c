// Package capability reports which capture modes this host can serve.
package capability

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loqalabs/loqa-pitch/internal/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Probe checks one capture mode.
type Probe struct {
	Name       string
	Available  func() bool
	Attributes map[string]string
}

// Publisher announces capability changes; *bus.Client satisfies it.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

type Registry struct {
	nodeID   string
	probes   []Probe
	pub      Publisher
	interval time.Duration
	log      *slog.Logger

	mu      sync.RWMutex
	current []protocol.Capability
	checked time.Time

	cancel context.CancelFunc
	done   chan struct{}
	meter  metric.Meter
	gauge  metric.Int64ObservableGauge
	reg    metric.Registration
}

// NewRegistry evaluates the probes once and, when pub is non-nil, re-announces
// them every interval until Close.
func NewRegistry(ctx context.Context, nodeID string, probes []Probe, pub Publisher, interval time.Duration, log *slog.Logger) *Registry {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		nodeID:   nodeID,
		probes:   probes,
		pub:      pub,
		interval: interval,
		log:      log.With(slog.String("component", "capability-registry")),
		meter:    otel.Meter("github.com/loqalabs/loqa-pitch/capability"),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	r.refresh()
	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce capabilities", slog.String("error", err.Error()))
	}

	if pub != nil && interval > 0 {
		go r.run(ctx)
	} else {
		close(r.done)
	}
	return r
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
	if r.reg != nil {
		_ = r.reg.Unregister()
	}
}

func (r *Registry) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh()
			if err := r.announce(); err != nil {
				r.log.Warn("failed to announce capabilities", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Registry) refresh() {
	caps := make([]protocol.Capability, 0, len(r.probes))
	for _, p := range r.probes {
		available := p.Available != nil && p.Available()
		caps = append(caps, protocol.Capability{
			Name:       p.Name,
			Available:  available,
			Attributes: p.Attributes,
		})
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Name < caps[j].Name })

	r.mu.Lock()
	r.current = caps
	r.checked = time.Now().UTC()
	r.mu.Unlock()
}

func (r *Registry) announce() error {
	if r.pub == nil {
		return nil
	}
	r.mu.RLock()
	msg := protocol.CapabilityAnnounce{
		NodeID:       r.nodeID,
		Capabilities: append([]protocol.Capability(nil), r.current...),
		Timestamp:    r.checked,
	}
	r.mu.RUnlock()
	return r.pub.PublishJSON(protocol.SubjectCapabilityAnnounce, msg)
}

// Capabilities returns the last evaluated report, sorted by name.
func (r *Registry) Capabilities() []protocol.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]protocol.Capability(nil), r.current...)
}

// Available reports whether the named mode is currently usable.
func (r *Registry) Available(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.current {
		if c.Name == name {
			return c.Available
		}
	}
	return false
}

// Healthy reports whether at least one capture mode is usable.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.current {
		if c.Available {
			return true
		}
	}
	return false
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	gauge, err := r.meter.Int64ObservableGauge("pitch.capabilities.available", metric.WithDescription("1 when the capture mode is usable on this host"))
	if err != nil {
		return err
	}
	r.gauge = gauge
	r.reg, err = r.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		for _, c := range r.Capabilities() {
			var v int64
			if c.Available {
				v = 1
			}
			obs.ObserveInt64(gauge, v, metric.WithAttributes(attribute.String("capability", c.Name)))
		}
		return nil
	}, gauge)
	return err
}
