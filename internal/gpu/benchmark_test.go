package gpu

import (
	"fmt"
	"testing"

	"go.uber.org/zap"
)

func BenchmarkBuffer_RoundTrip(b *testing.B) {
	dev := NewCPUDevice(zap.NewNop(), 0)
	if err := dev.Initialize(); err != nil {
		b.Fatal(err)
	}
	defer dev.Cleanup()

	sizes := []int{1 << 10, 1 << 16, 1 << 20}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			host := make([]float32, size)
			for i := range host {
				host[i] = float32(i%100) / 100.0
			}
			buf := Wrap(dev, size, host)
			defer buf.Release()

			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if err := buf.CopyToDevice(); err != nil {
					b.Fatal(err)
				}
				if err := buf.CopyToHost(); err != nil {
					b.Fatal(err)
				}
			}

			b.ReportMetric(float64(2*4*size)*float64(b.N)/b.Elapsed().Seconds()/(1<<20), "MB/s")
		})
	}
}

// Benchmark allocation overhead
func BenchmarkBuffer_AllocationOverhead(b *testing.B) {
	dev := NewCPUDevice(zap.NewNop(), 0)
	if err := dev.Initialize(); err != nil {
		b.Fatal(err)
	}
	defer dev.Cleanup()

	size := 256 * 256
	host := make([]float32, size)

	b.Run("with_allocation", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := Wrap(dev, size, host)
			if err := buf.CopyToDevice(); err != nil {
				b.Fatal(err)
			}
			if err := buf.Release(); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("reuse_memory", func(b *testing.B) {
		buf := Wrap(dev, size, host)
		defer buf.Release()

		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			if err := buf.CopyToDevice(); err != nil {
				b.Fatal(err)
			}
		}
	})
}
