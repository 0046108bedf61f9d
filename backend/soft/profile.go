package soft

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

// Profile describes the device a software adapter pretends to be
type Profile struct {
	Name       string
	DriverUUID uuid.UUID
	VendorID   uint32
	DeviceID   uint32
	Features   hal.Features
	Limits     hal.Limits
	Memory     hal.MemoryProperties
}

// softDriverNamespace seeds driver UUIDs for profiles that do not set one
var softDriverNamespace = uuid.MustParse("6b1f3e5c-8f7e-4c55-9d2a-61a7c0b7e0a1")

const (
	mebibyte = 1024 * 1024
)

// DefaultProfile is a discrete GPU with a device-local heap and a host heap exposing coherent and
// non-coherent memory types
func DefaultProfile() Profile {
	return Profile{
		Name:       "accel soft device",
		DriverUUID: uuid.NewSHA1(softDriverNamespace, []byte("accel soft device")),
		VendorID:   0x10005,
		DeviceID:   1,
		Features: hal.FeatureAccelerationStructure | hal.FeatureRayQuery | hal.FeatureRayTracingPipeline |
			hal.FeatureBufferDeviceAddress,
		Limits: hal.Limits{
			NonCoherentAtomSize:                            256,
			MinAccelerationStructureScratchOffsetAlignment: 128,
			MaxMemoryAllocationCount:                       4096,
			MaxGeometryCount:                               1<<24 - 1,
			MaxInstanceCount:                               1<<24 - 1,
			MaxPrimitiveCount:                              1<<29 - 1,
		},
		Memory: hal.MemoryProperties{
			Types: []hal.MemoryType{
				{Properties: hal.MemoryPropertyDeviceLocal, HeapIndex: 0},
				{Properties: hal.MemoryPropertyCPUVisible | hal.MemoryPropertyCoherent, HeapIndex: 1},
				{Properties: hal.MemoryPropertyCPUVisible | hal.MemoryPropertyCPUCached, HeapIndex: 1},
				{Properties: hal.MemoryPropertyDeviceLocal | hal.MemoryPropertyCPUVisible | hal.MemoryPropertyCoherent, HeapIndex: 0},
			},
			Heaps: []hal.MemoryHeap{
				{Size: 256 * mebibyte, Flags: hal.MemoryHeapDeviceLocal},
				{Size: 256 * mebibyte},
			},
		},
	}
}

var featureNames = map[string]hal.Features{
	"AccelerationStructure": hal.FeatureAccelerationStructure,
	"RayTracingPipeline":    hal.FeatureRayTracingPipeline,
	"RayQuery":              hal.FeatureRayQuery,
	"BufferDeviceAddress":   hal.FeatureBufferDeviceAddress,
}

var memoryPropertyNames = map[string]hal.MemoryPropertyFlags{
	"DeviceLocal":     hal.MemoryPropertyDeviceLocal,
	"CPUVisible":      hal.MemoryPropertyCPUVisible,
	"HostVisible":     hal.MemoryPropertyCPUVisible,
	"Coherent":        hal.MemoryPropertyCoherent,
	"HostCoherent":    hal.MemoryPropertyCoherent,
	"CPUCached":       hal.MemoryPropertyCPUCached,
	"HostCached":      hal.MemoryPropertyCPUCached,
	"LazilyAllocated": hal.MemoryPropertyLazilyAllocated,
}

// LoadProfile reads a JSON device profile from disk
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "failed to read device profile %s", path)
	}

	profile, err := ParseProfile(data)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "device profile %s", path)
	}
	return profile, nil
}

// ParseProfile reads a JSON device profile. Fields that are not present keep DefaultProfile's values,
// except that memoryTypes and memoryHeaps replace the defaults as a whole.
func ParseProfile(data []byte) (Profile, error) {
	profile := DefaultProfile()
	driverSet := false

	r := jreader.NewReader(data)
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "name":
			profile.Name = r.String()
		case "driverUUID":
			id, err := uuid.Parse(r.String())
			if err != nil {
				r.AddError(errors.Wrap(err, "driverUUID"))
				continue
			}
			profile.DriverUUID = id
			driverSet = true
		case "vendorID":
			profile.VendorID = uint32(r.Int())
		case "deviceID":
			profile.DeviceID = uint32(r.Int())
		case "features":
			profile.Features = 0
			for arr := r.Array(); arr.Next(); {
				name := r.String()
				feature, ok := featureNames[name]
				if !ok {
					r.AddError(errors.Newf("unknown feature %q", name))
					continue
				}
				profile.Features |= feature
			}
		case "limits":
			readLimits(&r, &profile.Limits)
		case "memoryHeaps":
			profile.Memory.Heaps = readHeaps(&r)
		case "memoryTypes":
			profile.Memory.Types = readTypes(&r)
		default:
			_ = r.SkipValue()
		}
	}

	if err := r.Error(); err != nil {
		return Profile{}, errors.Wrap(err, "failed to parse device profile")
	}

	if !driverSet {
		profile.DriverUUID = uuid.NewSHA1(softDriverNamespace, []byte(profile.Name))
	}

	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func readLimits(r *jreader.Reader, limits *hal.Limits) {
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "nonCoherentAtomSize":
			limits.NonCoherentAtomSize = uint64(r.Int())
		case "minAccelerationStructureScratchOffsetAlignment":
			limits.MinAccelerationStructureScratchOffsetAlignment = uint64(r.Int())
		case "maxMemoryAllocationCount":
			limits.MaxMemoryAllocationCount = uint32(r.Int())
		case "maxGeometryCount":
			limits.MaxGeometryCount = uint64(r.Int())
		case "maxInstanceCount":
			limits.MaxInstanceCount = uint64(r.Int())
		case "maxPrimitiveCount":
			limits.MaxPrimitiveCount = uint64(r.Int())
		default:
			_ = r.SkipValue()
		}
	}
}

func readHeaps(r *jreader.Reader) []hal.MemoryHeap {
	var heaps []hal.MemoryHeap
	for arr := r.Array(); arr.Next(); {
		var heap hal.MemoryHeap
		for obj := r.Object(); obj.Next(); {
			switch string(obj.Name()) {
			case "size":
				heap.Size = uint64(r.Int())
			case "flags":
				for flags := r.Array(); flags.Next(); {
					name := r.String()
					if name != "DeviceLocal" {
						r.AddError(errors.Newf("unknown memory heap flag %q", name))
						continue
					}
					heap.Flags |= hal.MemoryHeapDeviceLocal
				}
			default:
				_ = r.SkipValue()
			}
		}
		heaps = append(heaps, heap)
	}
	return heaps
}

func readTypes(r *jreader.Reader) []hal.MemoryType {
	var types []hal.MemoryType
	for arr := r.Array(); arr.Next(); {
		var memoryType hal.MemoryType
		for obj := r.Object(); obj.Next(); {
			switch string(obj.Name()) {
			case "heapIndex":
				memoryType.HeapIndex = r.Int()
			case "properties":
				for props := r.Array(); props.Next(); {
					name := r.String()
					property, ok := memoryPropertyNames[name]
					if !ok {
						r.AddError(errors.Newf("unknown memory property %q", name))
						continue
					}
					memoryType.Properties |= property
				}
			default:
				_ = r.SkipValue()
			}
		}
		types = append(types, memoryType)
	}
	return types
}

// Validate checks that the profile describes a usable device
func (p Profile) Validate() error {
	if len(p.Memory.Heaps) == 0 || len(p.Memory.Types) == 0 {
		return errors.Newf("profile %q needs at least one memory heap and type", p.Name)
	}
	if len(p.Memory.Types) > 32 {
		return errors.Newf("profile %q has %d memory types, at most 32 are addressable", p.Name, len(p.Memory.Types))
	}
	if err := memutils.CheckPow2(p.Limits.NonCoherentAtomSize, "nonCoherentAtomSize"); err != nil {
		return err
	}
	if err := memutils.CheckPow2(p.Limits.MinAccelerationStructureScratchOffsetAlignment, "minAccelerationStructureScratchOffsetAlignment"); err != nil {
		return err
	}
	for index, memoryType := range p.Memory.Types {
		if memoryType.HeapIndex < 0 || memoryType.HeapIndex >= len(p.Memory.Heaps) {
			return errors.Newf("memory type %d refers to missing heap %d", index, memoryType.HeapIndex)
		}
	}
	return nil
}
