package vulkan

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type queryPool struct {
	queryType hal.QueryType
	count     uint32
	vulkan    core1_0.QueryPool
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

func (d *Device) queryPoolFrom(handle hal.QueryPool) *queryPool {
	pool, ok := handle.(*queryPool)
	if !ok {
		panic(errors.AssertionFailedf("query pool %T was not created by a vulkan device", handle))
	}
	return pool
}

func (d *Device) CreateQueryPool(queryType hal.QueryType, count uint32) (hal.QueryPool, error) {
	d.logger.Debug("Device::CreateQueryPool", slog.String("type", queryType.String()), slog.Uint64("count", uint64(count)))

	vulkanType, ok := translateQueryType(queryType)
	if !ok {
		return nil, errors.Wrapf(hal.ErrCreation, "unsupported query type %s", queryType)
	}
	if count == 0 {
		return nil, errors.Wrap(hal.ErrCreation, "query pool must hold at least one query")
	}

	vulkanPool, res, err := d.device.CreateQueryPool(d.callbacks, core1_0.QueryPoolCreateInfo{
		QueryType:  vulkanType,
		QueryCount: int(count),
	})
	if err != nil {
		return nil, hal.Classify(translateResult(res, err, "failed to create query pool"), hal.ErrCreation)
	}

	return &queryPool{
		queryType: queryType,
		count:     count,
		vulkan:    vulkanPool,
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

	res, err := pool.vulkan.PopulateResults(int(firstQuery), int(queryCount), data, int(stride), translateQueryResultFlags(flags))
	if err != nil {
		return false, translateResult(res, err, "failed to read query results")
	}
	return res != core1_0.VKNotReady, nil
}

func (d *Device) DestroyQueryPool(handle hal.QueryPool) {
	pool := d.queryPoolFrom(handle)
	d.logger.Debug("Device::DestroyQueryPool", slog.String("type", pool.queryType.String()))

	if pool.vulkan == nil {
		panic("query pool was destroyed twice")
	}
	pool.vulkan.Destroy(d.callbacks)
	pool.vulkan = nil
}
