package compresscache

import (
	"compress/gzip"
	"context"
	"strings"
	"testing"
)

func BenchmarkGzip_Store(b *testing.B) {
	ctx := context.Background()
	storage, _ := NewGzip(GzipConfig{
		Storage: newMockStorage(),
		Level:   gzip.DefaultCompression,
	})

	data := []byte(strings.Repeat("benchmark data ", 100))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = storage.Store(ctx, "key", data)
	}
}

func BenchmarkGzip_Load(b *testing.B) {
	ctx := context.Background()
	storage, _ := NewGzip(GzipConfig{
		Storage: newMockStorage(),
		Level:   gzip.DefaultCompression,
	})

	data := []byte(strings.Repeat("benchmark data ", 100))
	_, _ = storage.Store(ctx, "key", data)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = storage.Load(ctx, "key")
	}
}

func BenchmarkBrotli_Store(b *testing.B) {
	ctx := context.Background()
	storage, _ := NewBrotli(BrotliConfig{
		Storage: newMockStorage(),
		Level:   6,
	})

	data := []byte(strings.Repeat("benchmark data ", 100))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = storage.Store(ctx, "key", data)
	}
}

func BenchmarkBrotli_Load(b *testing.B) {
	ctx := context.Background()
	storage, _ := NewBrotli(BrotliConfig{
		Storage: newMockStorage(),
		Level:   6,
	})

	data := []byte(strings.Repeat("benchmark data ", 100))
	_, _ = storage.Store(ctx, "key", data)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = storage.Load(ctx, "key")
	}
}

func BenchmarkSnappy_Store(b *testing.B) {
	ctx := context.Background()
	storage, _ := NewSnappy(SnappyConfig{
		Storage: newMockStorage(),
	})

	data := []byte(strings.Repeat("benchmark data ", 100))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = storage.Store(ctx, "key", data)
	}
}

func BenchmarkSnappy_Load(b *testing.B) {
	ctx := context.Background()
	storage, _ := NewSnappy(SnappyConfig{
		Storage: newMockStorage(),
	})

	data := []byte(strings.Repeat("benchmark data ", 100))
	_, _ = storage.Store(ctx, "key", data)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = storage.Load(ctx, "key")
	}
}

func BenchmarkGzip_StoreLoad_Small(b *testing.B) {
	ctx := context.Background()
	storage, _ := NewGzip(GzipConfig{
		Storage: newMockStorage(),
		Level:   gzip.DefaultCompression,
	})

	data := []byte("small data")
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = storage.Store(ctx, "key", data)
		_, _ = storage.Load(ctx, "key")
	}
}

func BenchmarkGzip_StoreLoad_Large(b *testing.B) {
	ctx := context.Background()
	storage, _ := NewGzip(GzipConfig{
		Storage: newMockStorage(),
		Level:   gzip.DefaultCompression,
	})

	data := []byte(strings.Repeat("large benchmark data ", 1000))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = storage.Store(ctx, "key", data)
		_, _ = storage.Load(ctx, "key")
	}
}

func BenchmarkCompressionLevels(b *testing.B) {
	levels := []struct {
		name  string
		level int
	}{
		{"BestSpeed", gzip.BestSpeed},
		{"Default", gzip.DefaultCompression},
		{"BestCompression", gzip.BestCompression},
	}

	data := []byte(strings.Repeat("compression level benchmark ", 100))

	for _, l := range levels {
		b.Run(l.name, func(b *testing.B) {
			ctx := context.Background()
			storage, _ := NewGzip(GzipConfig{
				Storage: newMockStorage(),
				Level:   l.level,
			})

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = storage.Store(ctx, "key", data)
				_, _ = storage.Load(ctx, "key")
			}
		})
	}
}

func BenchmarkAlgorithmComparison(b *testing.B) {
	data := []byte(strings.Repeat("algorithm comparison benchmark ", 100))

	b.Run("Gzip", func(b *testing.B) {
		ctx := context.Background()
		storage, _ := NewGzip(GzipConfig{
			Storage: newMockStorage(),
			Level:   gzip.DefaultCompression,
		})
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = storage.Store(ctx, "key", data)
			_, _ = storage.Load(ctx, "key")
		}
	})

	b.Run("Brotli", func(b *testing.B) {
		ctx := context.Background()
		storage, _ := NewBrotli(BrotliConfig{
			Storage: newMockStorage(),
			Level:   6,
		})
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = storage.Store(ctx, "key", data)
			_, _ = storage.Load(ctx, "key")
		}
	})

	b.Run("Snappy", func(b *testing.B) {
		ctx := context.Background()
		storage, _ := NewSnappy(SnappyConfig{
			Storage: newMockStorage(),
		})
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = storage.Store(ctx, "key", data)
			_, _ = storage.Load(ctx, "key")
		}
	})
}
