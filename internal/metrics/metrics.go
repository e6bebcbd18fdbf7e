package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backprop-error kernel metrics
	KernelDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backprop_kernel_dispatches_total",
		Help: "The total number of backprop-error kernel dispatches",
	}, []string{"variant", "backend"})

	KernelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backprop_kernel_duration_ms",
		Help:    "Duration of backprop-error kernel dispatches in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 20), // 10us to ~5s
	}, []string{"variant"})

	KernelGFLOPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backprop_kernel_gflops",
		Help: "Throughput of the last backprop-error dispatch in GFLOPS",
	}, []string{"variant"})

	// Device buffer metrics
	BufferTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_buffer_transfers_total",
		Help: "The total number of host/device buffer transfers",
	}, []string{"direction"})

	BufferTransferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_buffer_transfer_bytes_total",
		Help: "Bytes moved between host and device",
	}, []string{"direction"})

	DeviceMemoryUsedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "device_memory_used_bytes",
		Help: "Device memory currently allocated by buffers in bytes",
	})

	// Gradient check metrics
	GradientCheckIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gradient_check_iterations_total",
		Help: "Numerical gradient check iterations by outcome",
	}, []string{"outcome"})

	GradientCheckRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gradient_check_worst_ratio",
		Help: "Largest relative disagreement between realized and predicted loss change in the last check",
	})
)

const (
	DirectionToDevice = "to_device"
	DirectionToHost   = "to_host"
)
