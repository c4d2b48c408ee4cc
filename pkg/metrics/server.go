package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultNamespace = "udpcopy"
	subsystemServer  = "server"
)

// ServerCollector tracks daemon-side transfer statistics and exposes them
// via Prometheus compatible collectors.
type ServerCollector struct {
	mu        sync.RWMutex
	namespace string
	registry  *prometheus.Registry

	startTime         time.Time
	activeSessions    int64
	sessionsStarted   uint64
	sessionsCompleted uint64
	sessionsAborted   uint64
	segmentsSent      uint64
	retransmissions   uint64
	recoveryResends   uint64
	errorsSent        uint64
	invalidFrames     uint64
	queueDrops        uint64
	acksReceived      uint64
	bytesSent         uint64
}

// ServerSnapshot represents a point-in-time view of the collected metrics.
type ServerSnapshot struct {
	Elapsed           time.Duration
	ActiveSessions    int64
	SessionsStarted   uint64
	SessionsCompleted uint64
	SessionsAborted   uint64
	SegmentsSent      uint64
	Retransmissions   uint64
	RecoveryResends   uint64
	ErrorsSent        uint64
	InvalidFrames     uint64
	QueueDrops        uint64
	AcksReceived      uint64
	BytesSent         uint64
	ThroughputBps     float64
	RetransmitRate    float64
}

// NewServerCollector creates a collector and wires up prometheus collectors.
func NewServerCollector(namespace string) *ServerCollector {
	if strings.TrimSpace(namespace) == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	sc := &ServerCollector{
		namespace: namespace,
		registry:  reg,
	}
	sc.registerMetrics()
	return sc
}

// Registry returns the prometheus registry managed by this collector.
func (c *ServerCollector) Registry() *prometheus.Registry {
	return c.registry
}

// SessionOpened records a new peer session. The gauge drops again in
// SessionClosed regardless of outcome.
func (c *ServerCollector) SessionOpened() {
	c.mu.Lock()
	c.ensureStartTimeLocked()
	c.activeSessions++
	c.sessionsStarted++
	c.mu.Unlock()
}

func (c *ServerCollector) SessionClosed() {
	c.mu.Lock()
	if c.activeSessions > 0 {
		c.activeSessions--
	}
	c.mu.Unlock()
}

// SessionCompleted records a transfer whose every segment was acknowledged.
func (c *ServerCollector) SessionCompleted() {
	c.mu.Lock()
	c.sessionsCompleted++
	c.mu.Unlock()
}

// SessionAborted records a transfer given up after retry exhaustion.
func (c *ServerCollector) SessionAborted() {
	c.mu.Lock()
	c.sessionsAborted++
	c.mu.Unlock()
}

// ObserveSegmentSend records one DATA frame leaving the socket. Retransmits
// and recovery resends are accounted separately from first sends.
func (c *ServerCollector) ObserveSegmentSend(bytes int, retransmit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureStartTimeLocked()
	c.segmentsSent++
	if retransmit {
		c.retransmissions++
	}
	if bytes > 0 {
		c.bytesSent += uint64(bytes)
	}
}

func (c *ServerCollector) ObserveRecoveryResend(bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureStartTimeLocked()
	c.recoveryResends++
	if bytes > 0 {
		c.bytesSent += uint64(bytes)
	}
}

func (c *ServerCollector) ObserveErrorSent() {
	c.mu.Lock()
	c.errorsSent++
	c.mu.Unlock()
}

func (c *ServerCollector) ObserveInvalidFrame() {
	c.mu.Lock()
	c.invalidFrames++
	c.mu.Unlock()
}

func (c *ServerCollector) ObserveQueueDrop() {
	c.mu.Lock()
	c.queueDrops++
	c.mu.Unlock()
}

func (c *ServerCollector) ObserveAck() {
	c.mu.Lock()
	c.acksReceived++
	c.mu.Unlock()
}

// Snapshot creates a read-only view of the collected metrics.
func (c *ServerCollector) Snapshot() ServerSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buildSnapshotLocked(time.Now())
}

func (c *ServerCollector) buildSnapshotLocked(now time.Time) ServerSnapshot {
	elapsed := time.Duration(0)
	if !c.startTime.IsZero() {
		elapsed = now.Sub(c.startTime)
	}

	var retransRate float64
	if c.segmentsSent > 0 {
		retransRate = float64(c.retransmissions) / float64(c.segmentsSent)
	}

	return ServerSnapshot{
		Elapsed:           elapsed,
		ActiveSessions:    c.activeSessions,
		SessionsStarted:   c.sessionsStarted,
		SessionsCompleted: c.sessionsCompleted,
		SessionsAborted:   c.sessionsAborted,
		SegmentsSent:      c.segmentsSent,
		Retransmissions:   c.retransmissions,
		RecoveryResends:   c.recoveryResends,
		ErrorsSent:        c.errorsSent,
		InvalidFrames:     c.invalidFrames,
		QueueDrops:        c.queueDrops,
		AcksReceived:      c.acksReceived,
		BytesSent:         c.bytesSent,
		ThroughputBps:     rateFromBytes(c.bytesSent, elapsed),
		RetransmitRate:    retransRate,
	}
}

func (c *ServerCollector) registerMetrics() {
	makeGauge := func(name, help string, valueFn func(ServerSnapshot) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Subsystem: subsystemServer,
			Name:      name,
			Help:      help,
		}, func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return valueFn(c.buildSnapshotLocked(time.Now()))
		})
	}

	makeCounter := func(name, help string, valueFn func() float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: subsystemServer,
			Name:      name,
			Help:      help,
		}, valueFn)
	}

	c.registry.MustRegister(makeGauge(
		"active_sessions",
		"Peer sessions currently tracked by the dispatcher.",
		func(s ServerSnapshot) float64 { return float64(s.ActiveSessions) },
	))
	c.registry.MustRegister(makeGauge(
		"throughput_bytes_per_second",
		"Payload bytes sent per second since the first session.",
		func(s ServerSnapshot) float64 { return s.ThroughputBps },
	))
	c.registry.MustRegister(makeGauge(
		"retransmission_ratio",
		"Ratio of retransmitted DATA frames to all DATA frames sent.",
		func(s ServerSnapshot) float64 { return s.RetransmitRate },
	))

	c.registry.MustRegister(makeCounter(
		"sessions_started_total",
		"Sessions opened after a well formed GET request.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.sessionsStarted)
		},
	))
	c.registry.MustRegister(makeCounter(
		"sessions_completed_total",
		"Sessions whose final segment was acknowledged.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.sessionsCompleted)
		},
	))
	c.registry.MustRegister(makeCounter(
		"sessions_aborted_total",
		"Sessions dropped after retry exhaustion.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.sessionsAborted)
		},
	))
	c.registry.MustRegister(makeCounter(
		"segments_sent_total",
		"DATA frames written to the socket, including retransmissions.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.segmentsSent)
		},
	))
	c.registry.MustRegister(makeCounter(
		"retransmissions_total",
		"DATA frames resent after an acknowledgement timeout.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.retransmissions)
		},
	))
	c.registry.MustRegister(makeCounter(
		"recovery_resends_total",
		"DATA frames served from the post transfer recovery window.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.recoveryResends)
		},
	))
	c.registry.MustRegister(makeCounter(
		"errors_sent_total",
		"ERROR frames sent to peers.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.errorsSent)
		},
	))
	c.registry.MustRegister(makeCounter(
		"invalid_frames_total",
		"Inbound datagrams dropped by frame validation.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.invalidFrames)
		},
	))
	c.registry.MustRegister(makeCounter(
		"queue_drops_total",
		"Datagrams dropped because a peer queue was full.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.queueDrops)
		},
	))
	c.registry.MustRegister(makeCounter(
		"acks_received_total",
		"Valid ACK frames accepted from peers.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.acksReceived)
		},
	))
	c.registry.MustRegister(makeCounter(
		"bytes_sent_total",
		"Total payload bytes sent to peers.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.bytesSent)
		},
	))
}

func (c *ServerCollector) ensureStartTimeLocked() {
	if c.startTime.IsZero() {
		c.startTime = time.Now()
	}
}

func rateFromBytes(bytes uint64, elapsed time.Duration) float64 {
	if bytes == 0 {
		return 0
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds()
}
