package soft

import (
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
)

type queryPool struct {
	queryType hal.QueryType
	count     uint32

	lock      sync.Mutex
	results   []uint64
	available []bool
	// updated is closed and replaced whenever a result becomes available
	updated chan struct{}
}

var _ hal.QueryPool = &queryPool{}

func (p *queryPool) Type() hal.QueryType { return p.queryType }
func (p *queryPool) Count() uint32       { return p.count }

func (p *queryPool) checkRange(firstQuery, queryCount uint32) error {
	if uint64(firstQuery)+uint64(queryCount) > uint64(p.count) {
		return errors.Wrapf(hal.ErrCreation, "queries [%d, %d) are outside a pool of %d",
			firstQuery, uint64(firstQuery)+uint64(queryCount), p.count)
	}
	return nil
}

func (p *queryPool) write(index uint32, value uint64) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.results[index] = value
	p.available[index] = true
	close(p.updated)
	p.updated = make(chan struct{})
}

func (p *queryPool) reset(firstQuery, queryCount uint32) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for index := firstQuery; index < firstQuery+queryCount; index++ {
		p.results[index] = 0
		p.available[index] = false
	}
}

// snapshot copies the requested results. ready is true when all of them are available; otherwise
// updated fires on the next write.
func (p *queryPool) snapshot(firstQuery, queryCount uint32) (results []uint64, available []bool, ready bool, updated chan struct{}) {
	p.lock.Lock()
	defer p.lock.Unlock()

	results = make([]uint64, queryCount)
	available = make([]bool, queryCount)
	copy(results, p.results[firstQuery:])
	copy(available, p.available[firstQuery:])

	ready = true
	for _, ok := range available {
		ready = ready && ok
	}
	return results, available, ready, p.updated
}

func (d *Device) queryPoolFrom(handle hal.QueryPool) *queryPool {
	pool, ok := handle.(*queryPool)
	if !ok {
		panic(errors.AssertionFailedf("query pool %T was not created by a soft device", handle))
	}
	return pool
}

func (d *Device) CreateQueryPool(queryType hal.QueryType, count uint32) (hal.QueryPool, error) {
	d.logger.Debug("Device::CreateQueryPool", slog.String("type", queryType.String()), slog.Uint64("count", uint64(count)))

	if queryType != hal.QueryTypeAccelerationStructureCompactedSize && queryType != hal.QueryTypeAccelerationStructureSerializationSize {
		return nil, errors.Wrapf(hal.ErrCreation, "unsupported query type %s", queryType)
	}
	if count == 0 {
		return nil, errors.Wrap(hal.ErrCreation, "query pool must hold at least one query")
	}

	return &queryPool{
		queryType: queryType,
		count:     count,
		results:   make([]uint64, count),
		available: make([]bool, count),
		updated:   make(chan struct{}),
	}, nil
}

func (d *Device) GetQueryPoolResults(handle hal.QueryPool, firstQuery, queryCount uint32, data []byte, stride uint64, flags hal.QueryResultFlags) (bool, error) {
	pool := d.queryPoolFrom(handle)
	if err := pool.checkRange(firstQuery, queryCount); err != nil {
		return false, err
	}
	if queryCount == 0 {
		return true, nil
	}

	wordSize := uint64(4)
	if flags&hal.QueryResult64 != 0 {
		wordSize = 8
	}
	queryBytes := wordSize
	if flags&hal.QueryResultWithAvailability != 0 {
		queryBytes += wordSize
	}
	if stride < queryBytes || stride%wordSize != 0 {
		return false, errors.Newf("stride %d cannot hold %d byte results", stride, queryBytes)
	}
	if needed := uint64(queryCount-1)*stride + queryBytes; uint64(len(data)) < needed {
		return false, errors.Newf("%d bytes cannot hold %d results, %d are needed", len(data), queryCount, needed)
	}

	results, available, ready, updated := pool.snapshot(firstQuery, queryCount)
	for !ready && flags&hal.QueryResultWait != 0 {
		select {
		case <-updated:
		case <-d.lost:
			return false, d.lostError()
		}
		results, available, ready, updated = pool.snapshot(firstQuery, queryCount)
	}

	putWord := func(dst []byte, value uint64) {
		if wordSize == 8 {
			binary.LittleEndian.PutUint64(dst, value)
		} else {
			binary.LittleEndian.PutUint32(dst, uint32(min(value, uint64(^uint32(0)))))
		}
	}

	for index := range results {
		dst := data[uint64(index)*stride:]
		if available[index] || flags&hal.QueryResultPartial != 0 {
			putWord(dst, results[index])
		}
		if flags&hal.QueryResultWithAvailability != 0 {
			var availability uint64
			if available[index] {
				availability = 1
			}
			putWord(dst[wordSize:], availability)
		}
	}

	if !ready {
		return false, d.lostError()
	}
	return true, nil
}

func (d *Device) DestroyQueryPool(handle hal.QueryPool) {
	pool := d.queryPoolFrom(handle)
	d.logger.Debug("Device::DestroyQueryPool", slog.String("type", pool.queryType.String()))
}
