package hal

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// GeometryKind names the variant of a GeometryData
type GeometryKind int

const (
	GeometryKindTriangles GeometryKind = iota
	GeometryKindAabbs
	GeometryKindInstances
)

func (k GeometryKind) String() string {
	switch k {
	case GeometryKindTriangles:
		return "Triangles"
	case GeometryKindAabbs:
		return "Aabbs"
	case GeometryKindInstances:
		return "Instances"
	}
	return fmt.Sprintf("GeometryKind(%d)", int(k))
}

// GeometryData is one of GeometryTriangles, GeometryAabbs or GeometryInstances
type GeometryData interface {
	Kind() GeometryKind
	isGeometryData()
}

// IndexData points at 16 or 32 bit triangle indices
type IndexData struct {
	Buffer Buffer
	Offset uint64
	Type   IndexType
}

// TransformData points at a TransformMatrix applied to every vertex of a triangle geometry
type TransformData struct {
	Buffer Buffer
	Offset uint64
}

type GeometryTriangles struct {
	VertexFormat       Format
	VertexBuffer       Buffer
	VertexBufferOffset uint64
	VertexBufferStride uint64
	// MaxVertex is the highest vertex index any build of this geometry may reference
	MaxVertex uint32
	// Index is nil for non-indexed triangles, which read three consecutive vertices per primitive
	Index     *IndexData
	Transform *TransformData
}

func (GeometryTriangles) Kind() GeometryKind { return GeometryKindTriangles }
func (GeometryTriangles) isGeometryData()    {}

// GeometryAabbs reads one AabbPositions per primitive, BufferStride bytes apart
type GeometryAabbs struct {
	Buffer       Buffer
	BufferOffset uint64
	BufferStride uint64
}

func (GeometryAabbs) Kind() GeometryKind { return GeometryKindAabbs }
func (GeometryAabbs) isGeometryData()    {}

// GeometryInstances reads tightly packed Instance records
type GeometryInstances struct {
	Buffer       Buffer
	BufferOffset uint64
}

func (GeometryInstances) Kind() GeometryKind { return GeometryKindInstances }
func (GeometryInstances) isGeometryData()    {}

type Geometry struct {
	Flags GeometryFlags
	Data  GeometryData
}

// GeometryDesc is the ordered set of geometries built into one acceleration structure
type GeometryDesc struct {
	Flags      BuildFlags
	Type       AccelerationStructureType
	Geometries []Geometry
}

// Kind returns the variant shared by every geometry. It is false when there are no geometries.
func (d *GeometryDesc) Kind() (GeometryKind, bool) {
	if len(d.Geometries) == 0 || d.Geometries[0].Data == nil {
		return 0, false
	}
	return d.Geometries[0].Data.Kind(), true
}

// ValidateShape checks the invariants that hold regardless of buffers: every geometry has data, all
// geometries share a variant, and the variant suits the structure type. Violations are contract
// violations and callers panic on them.
func (d *GeometryDesc) ValidateShape() error {
	kind, ok := d.Kind()
	if !ok {
		if len(d.Geometries) > 0 {
			return errors.New("geometry 0 has no data")
		}
		return nil
	}

	for index, geometry := range d.Geometries {
		if geometry.Data == nil {
			return errors.Newf("geometry %d has no data", index)
		}
		if geometry.Data.Kind() != kind {
			return errors.Newf("geometry %d is %s but geometry 0 is %s", index, geometry.Data.Kind(), kind)
		}
	}

	switch d.Type {
	case AccelerationStructureTypeTopLevel:
		if kind != GeometryKindInstances {
			return errors.Newf("top level structures hold instances, not %s", kind)
		}
	case AccelerationStructureTypeBottomLevel:
		if kind == GeometryKindInstances {
			return errors.New("bottom level structures cannot hold instances")
		}
	case AccelerationStructureTypeGeneric:
	default:
		return errors.Newf("unknown acceleration structure type %d", d.Type)
	}

	return nil
}

// MustValidateShape panics if ValidateShape fails
func (d *GeometryDesc) MustValidateShape() {
	if err := d.ValidateShape(); err != nil {
		panic(err)
	}
}

// Validate checks the shape and every buffer reference needed to execute a build. Buffer problems are
// reported as ErrCreation.
func (d *GeometryDesc) Validate() error {
	if err := d.ValidateShape(); err != nil {
		return Classify(err, ErrCreation)
	}

	for index, geometry := range d.Geometries {
		var err error
		switch data := geometry.Data.(type) {
		case GeometryTriangles:
			err = data.validate()
		case GeometryAabbs:
			err = data.validate()
		case GeometryInstances:
			if data.Buffer == nil {
				err = errors.New("instance buffer is nil")
			}
		}
		if err != nil {
			return Classify(errors.Wrapf(err, "geometry %d", index), ErrCreation)
		}
	}

	return nil
}

func (t GeometryTriangles) validate() error {
	if t.VertexBuffer == nil {
		return errors.New("vertex buffer is nil")
	}
	if t.VertexFormat.Size() == 0 {
		return errors.Newf("unsupported vertex format %s", t.VertexFormat)
	}
	if t.VertexBufferStride < t.VertexFormat.Size() {
		return errors.Newf("vertex stride %d is smaller than one %s vertex", t.VertexBufferStride, t.VertexFormat)
	}
	if t.Index != nil {
		if t.Index.Buffer == nil {
			return errors.New("index buffer is nil")
		}
		if t.Index.Type != IndexTypeU16 && t.Index.Type != IndexTypeU32 {
			return errors.Newf("unknown index type %s", t.Index.Type)
		}
	}
	if t.Transform != nil && t.Transform.Buffer == nil {
		return errors.New("transform buffer is nil")
	}
	return nil
}

func (a GeometryAabbs) validate() error {
	if a.Buffer == nil {
		return errors.New("aabb buffer is nil")
	}
	if a.BufferStride < AabbPositionsSize || a.BufferStride%8 != 0 {
		return errors.Newf("aabb stride %d must be a multiple of 8 no smaller than %d", a.BufferStride, AabbPositionsSize)
	}
	return nil
}
