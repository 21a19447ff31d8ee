// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exports the events of communicators as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/someonegg/commpump"
)

// Collector is a commpump.Observer that records every event it sees,
// labeled by peer id. One Collector may observe many communicators.
type Collector struct {
	connected     *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	receivedBytes *prometheus.CounterVec
	receivedCount *prometheus.CounterVec
	chunkSize     *prometheus.HistogramVec
	rxRate        *prometheus.GaugeVec
	txRate        *prometheus.GaugeVec

	logger *zap.Logger
}

var _ commpump.Observer = (*Collector)(nil)

// NewCollector registers the metrics with reg, prometheus.DefaultRegisterer
// when nil.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.connected = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_connected",
			Help:      "1 while the peer is connected",
		},
		[]string{"id"},
	)

	c.transitions = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_transitions_total",
			Help:      "Total number of connects and disconnects",
		},
		[]string{"id", "state"}, // state: up, down
	)

	c.receivedBytes = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Total number of received bytes",
		},
		[]string{"id"},
	)

	c.receivedCount = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_chunks_total",
			Help:      "Total number of received chunks",
		},
		[]string{"id"},
	)

	c.chunkSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "received_chunk_size_bytes",
			Help:      "Size of received chunks in bytes",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		},
		[]string{"id"},
	)

	c.rxRate = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rx_mbps",
			Help:      "Receive rate of the last interval in Mbit/s",
		},
		[]string{"id"},
	)

	c.txRate = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tx_mbps",
			Help:      "Transmit rate of the last interval in Mbit/s",
		},
		[]string{"id"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

func (c *Collector) DataReady(e *commpump.DataEvent) {
	n := float64(len(e.Data))
	c.receivedBytes.WithLabelValues(e.PeerID).Add(n)
	c.receivedCount.WithLabelValues(e.PeerID).Inc()
	c.chunkSize.WithLabelValues(e.PeerID).Observe(n)
}

func (c *Collector) ConnectionState(id string, addr commpump.Address, connected bool) {
	state, v := "down", 0.0
	if connected {
		state, v = "up", 1.0
	}
	c.connected.WithLabelValues(id).Set(v)
	c.transitions.WithLabelValues(id, state).Inc()
	c.logger.Debug("peer state", zap.String("id", id),
		zap.Stringer("address", addr), zap.String("state", state))
}

func (c *Collector) DataRate(id string, rxMbps, txMbps float64) {
	c.rxRate.WithLabelValues(id).Set(rxMbps)
	c.txRate.WithLabelValues(id).Set(txMbps)
}

// Forget deletes the series of id, e.g. when its communicator is closed.
func (c *Collector) Forget(id string) {
	c.connected.DeleteLabelValues(id)
	c.transitions.DeleteLabelValues(id, "up")
	c.transitions.DeleteLabelValues(id, "down")
	c.receivedBytes.DeleteLabelValues(id)
	c.receivedCount.DeleteLabelValues(id)
	c.chunkSize.DeleteLabelValues(id)
	c.rxRate.DeleteLabelValues(id)
	c.txRate.DeleteLabelValues(id)
}
