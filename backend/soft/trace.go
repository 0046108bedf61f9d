package soft

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
)

// Ray is a host-side ray query. Direction need not be normalized; hit distances are in units of it.
type Ray struct {
	Origin    [3]float32
	Direction [3]float32
	TMin      float32
	TMax      float32
	// CullMask is ANDed with each instance's mask; instances with no common bit are skipped
	CullMask uint8
}

// Hit describes the closest intersection found by TraceRay
type Hit struct {
	T    float32
	Kind hal.GeometryKind
	// InstanceIndex and InstanceCustomIndex are zero when tracing a bottom level structure directly
	InstanceIndex       uint32
	InstanceCustomIndex uint32
	GeometryIndex       uint32
	PrimitiveIndex      uint32
	// Barycentrics are the weights of vertices 1 and 2 for triangle hits
	Barycentrics [2]float32
}

type traversal struct {
	device  *Device
	tMax    float32
	closest Hit
	found   bool
}

// TraceRay finds the closest hit of ray against a built structure, reading it the way hardware
// traversal would. Callers must wait for the builds that wrote the structure, and for the builds of every
// bottom level structure it references.
func (d *Device) TraceRay(handle hal.AccelerationStructure, ray Ray) (Hit, bool, error) {
	as := d.structureFrom(handle)
	storage, err := as.storage()
	if err != nil {
		return Hit{}, false, err
	}
	root, err := openBlob(storage)
	if err != nil {
		return Hit{}, false, errors.Wrapf(err, "tracing %s", as)
	}

	t := &traversal{device: d, tMax: ray.TMax}
	if err := t.visit(root, ray, nil); err != nil {
		return Hit{}, false, err
	}
	return t.closest, t.found, nil
}

type instanceHit struct {
	index       uint32
	customIndex uint32
}

func (t *traversal) visit(b *blob, ray Ray, instance *instanceHit) error {
	if b.header.recordCount == 0 {
		return nil
	}

	var invDir [3]float32
	for axis := range invDir {
		invDir[axis] = 1 / ray.Direction[axis]
	}

	stack := []uint32{0}
	for len(stack) > 0 {
		node := b.node(stack[len(stack)-1])
		stack = stack[:len(stack)-1]

		if node.bounds.IsEmpty() {
			continue
		}
		if _, ok := slabTest(node.bounds, ray.Origin, invDir, ray.TMin, t.tMax); !ok {
			continue
		}
		if !node.isLeaf() {
			stack = append(stack, node.b, node.a)
			continue
		}

		first, count := node.leafRange()
		for record := first; record < first+count; record++ {
			if err := t.visitRecord(b, record, ray, invDir, instance); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *traversal) visitRecord(b *blob, record uint32, ray Ray, invDir [3]float32, instance *instanceHit) error {
	rec := b.record(record)
	geometryIndex, primitiveIndex := b.recordIdentity(record)

	hit := Hit{Kind: b.header.kind, GeometryIndex: geometryIndex, PrimitiveIndex: primitiveIndex}
	if instance != nil {
		hit.InstanceIndex = instance.index
		hit.InstanceCustomIndex = instance.customIndex
	}

	switch b.header.kind {
	case hal.GeometryKindTriangles:
		distance, u, v, ok := intersectTriangle(decodeTriangle(rec), ray.Origin, ray.Direction, ray.TMin, t.tMax)
		if !ok {
			return nil
		}
		hit.T = distance
		hit.Barycentrics = [2]float32{u, v}

	case hal.GeometryKindAabbs:
		distance, ok := slabTest(hal.DecodeAabbPositions(rec), ray.Origin, invDir, ray.TMin, t.tMax)
		if !ok {
			return nil
		}
		hit.T = distance

	case hal.GeometryKindInstances:
		return t.visitInstance(hal.DecodeInstance(rec), primitiveIndex, ray)
	}

	t.closest, t.found, t.tMax = hit, true, hit.T
	return nil
}

func (t *traversal) visitInstance(instance hal.Instance, index uint32, ray Ray) error {
	if instance.Mask()&ray.CullMask == 0 {
		return nil
	}
	inverse, ok := instance.Transform.Inverse()
	if !ok {
		return nil
	}

	bottom, err := t.device.resolveInstance(instance.AccelerationStructureReference)
	if err != nil {
		return err
	}

	// An affine transform keeps distances along the ray, so t values carry over between spaces
	local := ray
	local.Origin = inverse.TransformPoint(ray.Origin)
	local.Direction = inverse.TransformVector(ray.Direction)

	return t.visit(bottom, local, &instanceHit{index: index, customIndex: instance.InstanceCustomIndex()})
}

// slabTest returns the entry distance of the ray into box, clamped to tMin
func slabTest(box hal.AabbPositions, origin, invDir [3]float32, tMin, tMax float32) (float32, bool) {
	near, far := tMin, tMax
	for axis := 0; axis < 3; axis++ {
		t0 := (box.Min[axis] - origin[axis]) * invDir[axis]
		t1 := (box.Max[axis] - origin[axis]) * invDir[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		// NaN comparisons are false, so a ray in a slab's plane keeps its interval
		if t0 > near {
			near = t0
		}
		if t1 < far {
			far = t1
		}
		if near > far {
			return 0, false
		}
	}
	return near, true
}

const triangleEpsilon = 1e-9

func intersectTriangle(triangle [3][3]float32, origin, direction [3]float32, tMin, tMax float32) (t, u, v float32, ok bool) {
	edge1 := subtract(triangle[1], triangle[0])
	edge2 := subtract(triangle[2], triangle[0])

	p := cross(direction, edge2)
	det := dot(edge1, p)
	if math.Abs(float64(det)) < triangleEpsilon {
		return 0, 0, 0, false
	}
	invDet := 1 / det

	s := subtract(origin, triangle[0])
	u = dot(s, p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	q := cross(s, edge1)
	v = dot(direction, q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = dot(edge2, q) * invDet
	if t < tMin || t > tMax {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

func subtract(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dot(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
