// Package idgen provides a snowflake style generator of cluster-unique, monotonic 64-bit IDs.
//
// Layout (most significant first): 41 bits of milliseconds since Epoch, 5 bits of datacenter,
// 5 bits of worker, 12 bits of per-millisecond sequence. IDs are unique across the cluster as
// long as every engine runs with a distinct (datacenter, worker) pair.
package idgen

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dukex/integra/pkg/faults"
)

const (
	workerIDBits     = 5
	dataCenterIDBits = 5
	sequenceBits     = 12

	MaxWorkerID     = -1 ^ (-1 << workerIDBits)
	MaxDataCenterID = -1 ^ (-1 << dataCenterIDBits)
	sequenceMask    = -1 ^ (-1 << sequenceBits)

	workerIDShift     = sequenceBits
	dataCenterIDShift = sequenceBits + workerIDBits
	timestampShift    = sequenceBits + workerIDBits + dataCenterIDBits
)

// Epoch is 2020-01-01T00:00:00Z in milliseconds.
const Epoch int64 = 1577836800000

var (
	ErrInvalidWorkerID     = fmt.Errorf("worker ID must be between 0 and %d", MaxWorkerID)
	ErrInvalidDataCenterID = fmt.Errorf("datacenter ID must be between 0 and %d", MaxDataCenterID)

	// ErrClockRegressed is returned when the system clock moved backwards. The caller must back off.
	ErrClockRegressed = errors.New("clock moved backwards, refusing to generate id")
)

// Option configures a Generator.
type Option func(*Generator)

// WithClock replaces the millisecond clock, for tests.
func WithClock(now func() int64) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// Generator hands out IDs. It is safe for concurrent use.
type Generator struct {
	mu            sync.Mutex
	dataCenterID  int64
	workerID      int64
	sequence      int64
	lastTimestamp int64
	now           func() int64
}

// New creates a generator for the given datacenter and worker.
func New(dataCenterID, workerID int64, opts ...Option) (*Generator, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, faults.Configuration("NewGenerator", "", ErrInvalidWorkerID)
	}

	if dataCenterID < 0 || dataCenterID > MaxDataCenterID {
		return nil, faults.Configuration("NewGenerator", "", ErrInvalidDataCenterID)
	}

	g := &Generator{
		dataCenterID:  dataCenterID,
		workerID:      workerID,
		lastTimestamp: -1,
		now: func() int64 {
			return time.Now().UnixMilli()
		},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// NextID returns the next ID.
func (g *Generator) NextID() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	timestamp := g.now()

	if timestamp < g.lastTimestamp {
		return 0, fmt.Errorf("%w: %dms behind", ErrClockRegressed, g.lastTimestamp-timestamp)
	}

	if timestamp == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			timestamp = g.waitNextMillis(g.lastTimestamp)
		}
	} else {
		g.sequence = 0
	}

	g.lastTimestamp = timestamp

	id := ((timestamp - Epoch) << timestampShift) |
		(g.dataCenterID << dataCenterIDShift) |
		(g.workerID << workerIDShift) |
		g.sequence

	return uint64(id), nil
}

func (g *Generator) waitNextMillis(last int64) int64 {
	timestamp := g.now()
	for timestamp <= last {
		timestamp = g.now()
	}

	return timestamp
}

// Parts is an ID split into its fields.
type Parts struct {
	Time         time.Time
	DataCenterID int64
	WorkerID     int64
	Sequence     int64
}

// Decompose splits an ID produced by a Generator.
func Decompose(id uint64) Parts {
	v := int64(id)

	return Parts{
		Time:         time.UnixMilli((v >> timestampShift) + Epoch).UTC(),
		DataCenterID: (v >> dataCenterIDShift) & MaxDataCenterID,
		WorkerID:     (v >> workerIDShift) & MaxWorkerID,
		Sequence:     v & sequenceMask,
	}
}
