package soft

import (
	"cmp"
	"slices"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// BuildStatsString returns a JSON document describing heap usage. When detailed is true, every live
// acceleration structure is listed along with the bytes its last build actually used.
func (d *Device) BuildStatsString(detailed bool) string {
	writer := jwriter.NewWriter()
	obj := writer.Object()

	device := obj.Name("Device").Object()
	device.Name("Name").String(d.profile.Name)
	device.Name("DriverUUID").String(d.profile.DriverUUID.String())
	device.Name("Features").String(d.features.String())
	device.Name("MemoryCount").Int(int(d.heaps.MemoryCount()))
	device.Name("Lost").Bool(d.IsLost())
	device.End()

	d.heaps.WriteJson(obj)

	if detailed {
		d.writeStructuresJson(obj)
	}

	obj.End()
	return string(writer.Bytes())
}

func (d *Device) writeStructuresJson(json jwriter.ObjectState) {
	d.objectsLock.RLock()
	structures := make([]*accelerationStructure, 0, d.structuresByAddress.Count())
	d.structuresByAddress.Iter(func(address uint64, as *accelerationStructure) bool {
		structures = append(structures, as)
		return false
	})
	d.objectsLock.RUnlock()

	slices.SortFunc(structures, func(l, r *accelerationStructure) int {
		return cmp.Compare(l.address, r.address)
	})

	array := json.Name("AccelerationStructures").Array()
	for _, as := range structures {
		obj := array.Object()
		obj.Name("Name").String(as.String())
		obj.Name("Type").String(as.structureType.String())
		obj.Name("Address").Float64(float64(as.address))
		obj.Name("Size").Float64(float64(as.size))
		obj.Name("State").String(as.currentState().String())

		if storage, err := as.storage(); err == nil {
			if built, err := openBlob(storage); err == nil {
				obj.Name("UsedBytes").Float64(float64(built.header.usedSize))
				obj.Name("Nodes").Int(int(built.header.nodeCount))
				obj.Name("Records").Int(int(built.header.recordCount))
			}
		}
		obj.End()
	}
	array.End()
}
