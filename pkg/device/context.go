// Package device provides the execution model the operator kernels run on:
// a context owning a memory budget and a worker pool, complex64 buffers
// charged against that budget, and an in-order stream that launches kernels
// over a block grid.
package device

import (
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// Config controls a device context.
type Config struct {
	// Workers is the number of goroutines blocks are spread across
	Workers int `yaml:"workers"`

	// MemoryLimit caps the bytes that may be allocated at once; 0 means no limit
	MemoryLimit int64 `yaml:"memoryLimit"`
}

// DefaultConfig uses every CPU and no memory limit.
func DefaultConfig() Config {
	return Config{
		Workers: runtime.NumCPU(),
	}
}

// Stats reports allocation accounting for a context.
type Stats struct {
	InUse          int64
	Peak           int64
	TotalAllocated int64
	TotalReleased  int64
	Launches       int64
}

// Context owns the worker pool size and the memory budget shared by every
// buffer and transform plan created from it.
type Context struct {
	workers int
	limit   int64

	mu    sync.Mutex
	stats Stats
}

// NewContext creates a context from cfg. Non-positive worker counts fall
// back to one worker.
func NewContext(cfg Config) *Context {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	limit := cfg.MemoryLimit
	if limit < 0 {
		limit = 0
	}
	return &Context{workers: workers, limit: limit}
}

// Workers returns the number of worker goroutines used per launch.
func (c *Context) Workers() int { return c.workers }

// Reserve charges bytes against the memory budget.
func (c *Context) Reserve(bytes int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limit > 0 && c.stats.InUse+bytes > c.limit {
		return &AllocError{Requested: bytes, Available: c.limit - c.stats.InUse}
	}
	c.stats.InUse += bytes
	c.stats.TotalAllocated += bytes
	if c.stats.InUse > c.stats.Peak {
		c.stats.Peak = c.stats.InUse
	}
	return nil
}

// Release returns bytes to the memory budget.
func (c *Context) Release(bytes int64) {
	c.mu.Lock()
	c.stats.InUse -= bytes
	c.stats.TotalReleased += bytes
	c.mu.Unlock()
}

// Stats returns a snapshot of the context accounting.
func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Context) countLaunch() {
	c.mu.Lock()
	c.stats.Launches++
	c.mu.Unlock()
}

// Info describes the host the kernels execute on.
type Info struct {
	Arch     string
	Workers  int
	Features []string
}

// Info reports the architecture, worker count and the SIMD features
// detected on the host.
func (c *Context) Info() Info {
	info := Info{Arch: runtime.GOARCH, Workers: c.workers}
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE2 {
			info.Features = append(info.Features, "sse2")
		}
		if cpu.X86.HasAVX2 {
			info.Features = append(info.Features, "avx2")
		}
		if cpu.X86.HasFMA {
			info.Features = append(info.Features, "fma")
		}
		if cpu.X86.HasAVX512F {
			info.Features = append(info.Features, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			info.Features = append(info.Features, "asimd")
		}
		if cpu.ARM64.HasSVE {
			info.Features = append(info.Features, "sve")
		}
	}
	return info
}
