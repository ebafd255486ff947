package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-dispatch/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// QueueSnapshotProvider provides current queue stats snapshots.
type QueueSnapshotProvider interface {
	Stats() core.QueueStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SnapshotPoller periodically exports queue/pool Stats() snapshots into Prometheus gauges.
//
// Queues that report Released are dropped from the poller and their series deleted.
type SnapshotPoller struct {
	interval time.Duration

	queuesMu sync.RWMutex
	queues   map[string]QueueSnapshotProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	queuePending   *prom.GaugeVec
	queueSuspended *prom.GaugeVec
	queueDraining  *prom.GaugeVec
	queueProcessed *prom.GaugeVec
	queueRefCount  *prom.GaugeVec

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolDelayed *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolRunning *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "dispatch",
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval:       interval,
		queues:         make(map[string]QueueSnapshotProvider),
		pools:          make(map[string]PoolSnapshotProvider),
		queuePending:   gauge("queue_pending", "Admitted but not yet finished tasks per queue.", "queue"),
		queueSuspended: gauge("queue_suspend_count", "Outstanding suspensions per queue.", "queue"),
		queueDraining:  gauge("queue_draining", "Queue drain state (1=draining, 0=idle).", "queue"),
		queueProcessed: gauge("queue_processed_total", "Queue processed task count snapshot.", "queue"),
		queueRefCount:  gauge("queue_ref_count", "Queue reference count.", "queue"),
		poolQueued:     gauge("pool_queued", "Queued submissions per pool.", "pool"),
		poolActive:     gauge("pool_active", "Active submissions per pool.", "pool"),
		poolDelayed:    gauge("pool_delayed", "Delayed admissions per pool.", "pool"),
		poolWorkers:    gauge("pool_workers", "Worker count per pool.", "pool"),
		poolRunning:    gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool"),
	}

	for _, g := range []**prom.GaugeVec{
		&p.queuePending, &p.queueSuspended, &p.queueDraining, &p.queueProcessed, &p.queueRefCount,
		&p.poolQueued, &p.poolActive, &p.poolDelayed, &p.poolWorkers, &p.poolRunning,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}

	return p, nil
}

// AddQueue adds or replaces a queue snapshot provider by name.
func (p *SnapshotPoller) AddQueue(name string, provider QueueSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	p.queues[name] = provider
	p.queuesMu.Unlock()
}

// RemoveQueue stops polling a queue and deletes its series.
func (p *SnapshotPoller) RemoveQueue(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	delete(p.queues, name)
	p.queuesMu.Unlock()
	p.deleteQueueSeries(name)
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	var released []string

	p.queuesMu.RLock()
	for name, provider := range p.queues {
		stats := provider.Stats()
		if stats.Released {
			released = append(released, name)
			continue
		}
		p.queuePending.WithLabelValues(name).Set(float64(stats.Pending))
		p.queueSuspended.WithLabelValues(name).Set(float64(stats.SuspendCount))
		p.queueDraining.WithLabelValues(name).Set(boolGauge(stats.Draining))
		p.queueProcessed.WithLabelValues(name).Set(float64(stats.Processed))
		p.queueRefCount.WithLabelValues(name).Set(float64(stats.RefCount))
	}
	p.queuesMu.RUnlock()

	for _, name := range released {
		p.RemoveQueue(name)
	}

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolDelayed.WithLabelValues(name).Set(float64(stats.Delayed))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.poolsMu.RUnlock()
}

func (p *SnapshotPoller) deleteQueueSeries(name string) {
	for _, g := range []*prom.GaugeVec{p.queuePending, p.queueSuspended, p.queueDraining, p.queueProcessed, p.queueRefCount} {
		g.DeleteLabelValues(name)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
