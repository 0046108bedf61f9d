package soft

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

// A built acceleration structure is a relocatable blob written at the start of its storage region:
//
//	header     64 bytes
//	geometries 16 bytes each: flags, primitive count, record count
//	nodes      32 bytes each, preorder, so children always follow their parent
//	records    one per active primitive, in leaf order
//
// Node and record references are indices, which lets copies move the blob without fixups.
const (
	blobMagic   uint32 = 0x53414343
	blobVersion uint16 = 1

	blobHeaderSize   = 64
	blobGeometrySize = 16
	blobNodeSize     = 32

	triangleRecordSize = 48
	aabbRecordSize     = 32
	instanceRecordSize = 80

	leafFlag uint32 = 1 << 31
)

func recordSize(kind hal.GeometryKind) uint64 {
	switch kind {
	case hal.GeometryKindTriangles:
		return triangleRecordSize
	case hal.GeometryKindAabbs:
		return aabbRecordSize
	}
	return instanceRecordSize
}

// recordIdentityOffset is where the geometry index and primitive index are stored inside a record
func recordIdentityOffset(kind hal.GeometryKind) uint64 {
	switch kind {
	case hal.GeometryKindTriangles:
		return 36
	case hal.GeometryKindAabbs:
		return hal.AabbPositionsSize
	}
	return hal.InstanceSize
}

func blobSize(geometryCount, nodeCount, recordCount, recordBytes uint64) uint64 {
	return blobHeaderSize + geometryCount*blobGeometrySize + nodeCount*blobNodeSize + recordCount*recordBytes
}

type blobHeader struct {
	structureType hal.AccelerationStructureType
	kind          hal.GeometryKind
	flags         hal.BuildFlags
	geometryCount uint32
	nodeCount     uint32
	recordCount   uint32
	usedSize      uint64
	bounds        hal.AabbPositions
}

func (h *blobHeader) nodesOffset() uint64 {
	return blobHeaderSize + uint64(h.geometryCount)*blobGeometrySize
}

func (h *blobHeader) recordsOffset() uint64 {
	return h.nodesOffset() + uint64(h.nodeCount)*blobNodeSize
}

func (h *blobHeader) encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:], blobMagic)
	binary.LittleEndian.PutUint16(dst[4:], blobVersion)
	dst[6] = byte(h.structureType)
	dst[7] = byte(h.kind)
	binary.LittleEndian.PutUint32(dst[8:], uint32(h.flags))
	binary.LittleEndian.PutUint32(dst[12:], h.geometryCount)
	binary.LittleEndian.PutUint32(dst[16:], h.nodeCount)
	binary.LittleEndian.PutUint32(dst[20:], h.recordCount)
	binary.LittleEndian.PutUint64(dst[24:], h.usedSize)
	h.bounds.Encode(dst[32:])
	binary.LittleEndian.PutUint32(dst[56:], uint32(recordSize(h.kind)))
	binary.LittleEndian.PutUint32(dst[60:], 0)
}

var errNotBuilt = errors.New("acceleration structure has not been built")

func decodeBlobHeader(src []byte) (blobHeader, error) {
	if len(src) < blobHeaderSize {
		return blobHeader{}, errors.Newf("%d bytes cannot hold an acceleration structure header", len(src))
	}
	if binary.LittleEndian.Uint32(src[0:]) != blobMagic {
		return blobHeader{}, errNotBuilt
	}
	if version := binary.LittleEndian.Uint16(src[4:]); version != blobVersion {
		return blobHeader{}, errors.Newf("unsupported acceleration structure version %d", version)
	}

	header := blobHeader{
		structureType: hal.AccelerationStructureType(src[6]),
		kind:          hal.GeometryKind(src[7]),
		flags:         hal.BuildFlags(binary.LittleEndian.Uint32(src[8:])),
		geometryCount: binary.LittleEndian.Uint32(src[12:]),
		nodeCount:     binary.LittleEndian.Uint32(src[16:]),
		recordCount:   binary.LittleEndian.Uint32(src[20:]),
		usedSize:      binary.LittleEndian.Uint64(src[24:]),
		bounds:        hal.DecodeAabbPositions(src[32:]),
	}

	if uint64(binary.LittleEndian.Uint32(src[56:])) != recordSize(header.kind) {
		return blobHeader{}, errors.New("acceleration structure header is corrupt")
	}
	expected := blobSize(uint64(header.geometryCount), uint64(header.nodeCount), uint64(header.recordCount), recordSize(header.kind))
	if header.usedSize != expected || header.usedSize > uint64(len(src)) {
		return blobHeader{}, errors.Newf("acceleration structure claims %d bytes, layout needs %d, storage holds %d",
			header.usedSize, expected, len(src))
	}
	return header, nil
}

type blobGeometry struct {
	flags          hal.GeometryFlags
	primitiveCount uint32
	recordCount    uint32
}

type blobNode struct {
	bounds hal.AabbPositions
	// leaf: first record index. internal: left child index.
	a uint32
	// leaf: leafFlag | record count. internal: right child index.
	b uint32
}

func (n blobNode) isLeaf() bool {
	return n.b&leafFlag != 0
}

func (n blobNode) leafRange() (first, count uint32) {
	return n.a, n.b &^ leafFlag
}

// blob is a view over a built structure's bytes
type blob struct {
	header blobHeader
	data   []byte
}

// openBlob decodes the header of the structure stored at the start of data
func openBlob(data []byte) (*blob, error) {
	header, err := decodeBlobHeader(data)
	if err != nil {
		return nil, err
	}
	return &blob{header: header, data: data[:header.usedSize]}, nil
}

// newBlob lays out an empty blob in data, which must hold header.usedSize bytes
func newBlob(data []byte, header blobHeader) (*blob, error) {
	header.usedSize = blobSize(uint64(header.geometryCount), uint64(header.nodeCount), uint64(header.recordCount), recordSize(header.kind))
	if err := memutils.CheckRange(0, header.usedSize, uint64(len(data))); err != nil {
		return nil, errors.Wrapf(err, "acceleration structure needs %d bytes of storage", header.usedSize)
	}

	b := &blob{header: header, data: data[:header.usedSize]}
	b.writeHeader()
	return b, nil
}

func (b *blob) writeHeader() {
	b.header.encode(b.data)
}

func (b *blob) geometry(index uint32) blobGeometry {
	src := b.data[blobHeaderSize+uint64(index)*blobGeometrySize:]
	return blobGeometry{
		flags:          hal.GeometryFlags(binary.LittleEndian.Uint32(src[0:])),
		primitiveCount: binary.LittleEndian.Uint32(src[4:]),
		recordCount:    binary.LittleEndian.Uint32(src[8:]),
	}
}

func (b *blob) setGeometry(index uint32, geometry blobGeometry) {
	dst := b.data[blobHeaderSize+uint64(index)*blobGeometrySize:]
	binary.LittleEndian.PutUint32(dst[0:], uint32(geometry.flags))
	binary.LittleEndian.PutUint32(dst[4:], geometry.primitiveCount)
	binary.LittleEndian.PutUint32(dst[8:], geometry.recordCount)
	binary.LittleEndian.PutUint32(dst[12:], 0)
}

func (b *blob) node(index uint32) blobNode {
	src := b.data[b.header.nodesOffset()+uint64(index)*blobNodeSize:]
	var raw [hal.AabbPositionsSize]byte
	copy(raw[0:12], src[0:12])
	copy(raw[12:24], src[16:28])

	return blobNode{
		bounds: hal.DecodeAabbPositions(raw[:]),
		a:      binary.LittleEndian.Uint32(src[12:]),
		b:      binary.LittleEndian.Uint32(src[28:]),
	}
}

// setNode stores min then a, max then b, so each half of a node is a vec4
func (b *blob) setNode(index uint32, node blobNode) {
	dst := b.data[b.header.nodesOffset()+uint64(index)*blobNodeSize:]
	var raw [hal.AabbPositionsSize]byte
	node.bounds.Encode(raw[:])
	copy(dst[0:12], raw[0:12])
	binary.LittleEndian.PutUint32(dst[12:], node.a)
	copy(dst[16:28], raw[12:24])
	binary.LittleEndian.PutUint32(dst[28:], node.b)
}

func (b *blob) record(index uint32) []byte {
	size := recordSize(b.header.kind)
	offset := b.header.recordsOffset() + uint64(index)*size
	return b.data[offset : offset+size]
}

func (b *blob) recordIdentity(index uint32) (geometryIndex, primitiveIndex uint32) {
	rec := b.record(index)
	offset := recordIdentityOffset(b.header.kind)
	return binary.LittleEndian.Uint32(rec[offset:]), binary.LittleEndian.Uint32(rec[offset+4:])
}

func putRecordIdentity(rec []byte, kind hal.GeometryKind, geometryIndex, primitiveIndex uint32) {
	offset := recordIdentityOffset(kind)
	binary.LittleEndian.PutUint32(rec[offset:], geometryIndex)
	binary.LittleEndian.PutUint32(rec[offset+4:], primitiveIndex)
}

func encodeTriangle(rec []byte, vertices [3][3]float32) {
	for v := 0; v < 3; v++ {
		for axis := 0; axis < 3; axis++ {
			binary.LittleEndian.PutUint32(rec[(v*3+axis)*4:], float32bits(vertices[v][axis]))
		}
	}
}

func decodeTriangle(rec []byte) [3][3]float32 {
	var vertices [3][3]float32
	for v := 0; v < 3; v++ {
		for axis := 0; axis < 3; axis++ {
			vertices[v][axis] = float32frombits(binary.LittleEndian.Uint32(rec[(v*3+axis)*4:]))
		}
	}
	return vertices
}
