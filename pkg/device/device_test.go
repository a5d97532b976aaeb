package device

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptychofft/internal/models"
	"ptychofft/pkg/grid"
)

func TestAllocAccounting(t *testing.T) {
	ctx := NewContext(Config{Workers: 2})

	a, err := ctx.Alloc(100)
	require.NoError(t, err)
	b, err := ctx.Alloc(50)
	require.NoError(t, err)

	assert.Equal(t, int64(150*8), ctx.Stats().InUse)

	a.Free()
	a.Free() // second free is a no-op
	assert.Equal(t, int64(50*8), ctx.Stats().InUse)
	assert.Equal(t, 0, a.Len())

	b.Free()
	stats := ctx.Stats()
	assert.Equal(t, int64(0), stats.InUse)
	assert.Equal(t, int64(150*8), stats.Peak)
	assert.Equal(t, stats.TotalAllocated, stats.TotalReleased)
}

func TestAllocOutOfMemory(t *testing.T) {
	ctx := NewContext(Config{Workers: 1, MemoryLimit: 1024})

	buf, err := ctx.Alloc(100) // 800 bytes
	require.NoError(t, err)
	defer buf.Free()

	_, err = ctx.Alloc(100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfMemory))

	var allocErr *AllocError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, int64(800), allocErr.Requested)
	assert.Equal(t, int64(224), allocErr.Available)
}

func TestUploadDownload(t *testing.T) {
	ctx := NewContext(DefaultConfig())
	buf, err := ctx.Alloc(4)
	require.NoError(t, err)

	src := []complex64{1, 2i, 3, 4 + 4i}
	require.NoError(t, buf.Upload(src))

	dst := make([]complex64, 4)
	require.NoError(t, buf.Download(dst))
	assert.Equal(t, src, dst)

	err = buf.Upload(make([]complex64, 3))
	assert.True(t, errors.Is(err, ErrLengthMismatch))

	buf.Free()
	assert.ErrorIs(t, buf.Download(dst), ErrFreed)
}

func TestLaunchVisitsExtentOnce(t *testing.T) {
	for _, workers := range []int{1, 4} {
		ctx := NewContext(Config{Workers: workers})
		stream := ctx.NewStream()

		extent := models.Dim3{X: 70, Y: 33, Z: 3}
		visits := make([]int32, extent.Count())

		stream.Launch(grid.NewLaunch(extent), func(x, y, z int) {
			atomic.AddInt32(&visits[(z*extent.Y+y)*extent.X+x], 1)
		})

		for i, v := range visits {
			if v != 1 {
				t.Fatalf("workers=%d: index %d visited %d times", workers, i, v)
			}
		}
		assert.Equal(t, int64(1), ctx.Stats().Launches)
	}
}

func TestMemset(t *testing.T) {
	ctx := NewContext(Config{Workers: 3})
	buf, err := ctx.Alloc(50000)
	require.NoError(t, err)

	data := buf.Data()
	for i := range data {
		data[i] = complex(float32(i), 1)
	}
	ctx.NewStream().Memset(buf)
	for i, v := range data {
		if v != 0 {
			t.Fatalf("element %d not cleared: %v", i, v)
		}
	}
}

func TestAtomicAdd(t *testing.T) {
	var acc complex64
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				AtomicAdd(&acc, complex(1, -0.5))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, complex64(complex(8000, -4000)), acc)
}

func TestInfo(t *testing.T) {
	info := NewContext(Config{Workers: 3}).Info()
	assert.Equal(t, 3, info.Workers)
	assert.NotEmpty(t, info.Arch)
}
