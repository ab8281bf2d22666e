package node

import "sync/atomic"

// MetricsSnapshot is a point-in-time view of a node's counters.
type MetricsSnapshot struct {
	MessagesPublished int64
	MessagesReceived  int64
	SendFailures      int64
	RequestTimeouts   int64
	PendingRequests   int
}

// Metrics tracks node traffic with atomic counters.
type Metrics struct {
	published    atomic.Int64
	received     atomic.Int64
	sendFailures atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordPublished(delta int) {
	m.published.Add(int64(delta))
}

func (m *Metrics) RecordReceived(delta int) {
	m.received.Add(int64(delta))
}

func (m *Metrics) RecordSendFailure(delta int) {
	m.sendFailures.Add(int64(delta))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		MessagesPublished: m.published.Load(),
		MessagesReceived:  m.received.Load(),
		SendFailures:      m.sendFailures.Load(),
	}
}
