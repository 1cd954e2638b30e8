package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletd",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of wallet RPC requests",
		},
		// code is 0 on success
		[]string{"method", "code"},
	)

	rpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "walletd",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Duration of wallet RPC requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	keystoreKeysGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "walletd",
			Subsystem: "keystore",
			Name:      "keys",
			Help:      "Number of keys registered in the keystore",
		},
	)
)
