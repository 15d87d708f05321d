package stepctx

import "testing"

func TestGet_SizeBuckets(t *testing.T) {
	tests := []struct {
		name        string
		requestSize int
		expectCap   int
	}{
		{"4K bucket - exact", 4 * 1024, 4 * 1024},
		{"4K bucket - smaller", 1 * 1024, 4 * 1024},
		{"16K bucket - exact", 16 * 1024, 16 * 1024},
		{"16K bucket - smaller", 10 * 1024, 16 * 1024},
		{"64K bucket - exact", 64 * 1024, 64 * 1024},
		{"64K bucket - smaller", 40 * 1024, 64 * 1024},
		{"oversized - falls back to make", 100 * 1024, 100 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.requestSize)
			if len(buf) != tt.requestSize {
				t.Errorf("Get(%d) returned len=%d, want %d", tt.requestSize, len(buf), tt.requestSize)
			}
			if cap(buf) != tt.expectCap {
				t.Errorf("Get(%d) returned cap=%d, want %d", tt.requestSize, cap(buf), tt.expectCap)
			}
			Put(buf)
		})
	}
}

func TestPut_NonStandardCap(t *testing.T) {
	buf := make([]byte, 100*1024)
	Put(buf)
}

func BenchmarkGet4K(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := Get(4 * 1024)
		Put(buf)
	}
}
