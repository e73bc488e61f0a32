package btree

import (
	"cmp"
	"encoding/binary"

	"github.com/sushant-115/kagedb/core/storage/page"
)

// Comparator orders keys: negative if a < b, zero if equal, positive if
// a > b.
type Comparator[K any] func(a, b K) int

// Codec encodes fixed-width keys and values into node pages. Size must be
// constant for the life of an index; variable-width types are out of
// scope.
type Codec[T any] interface {
	Size() int
	Encode(buf []byte, v T)
	Decode(buf []byte) T
}

// Int64Codec stores int64 keys little-endian in 8 bytes.
type Int64Codec struct{}

func (Int64Codec) Size() int { return 8 }

func (Int64Codec) Encode(buf []byte, v int64) {
	binary.LittleEndian.PutUint64(buf, uint64(v))
}

func (Int64Codec) Decode(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf))
}

// CompareInt64 is the natural ordering for int64 keys.
func CompareInt64(a, b int64) int { return cmp.Compare(a, b) }

// RID locates a tuple: the page holding it and the slot within that page.
type RID struct {
	PageID  page.PageID
	SlotNum uint32
}

// RIDCodec stores RIDs in 8 bytes.
type RIDCodec struct{}

func (RIDCodec) Size() int { return 8 }

func (RIDCodec) Encode(buf []byte, v RID) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(v.PageID)))
	binary.LittleEndian.PutUint32(buf[4:8], v.SlotNum)
}

func (RIDCodec) Decode(buf []byte) RID {
	return RID{
		PageID:  page.PageID(int32(binary.LittleEndian.Uint32(buf[0:4]))),
		SlotNum: binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// pageIDCodec backs the child-pointer slots of internal nodes.
type pageIDCodec struct{}

func (pageIDCodec) Size() int { return 4 }

func (pageIDCodec) Encode(buf []byte, v page.PageID) {
	binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
}

func (pageIDCodec) Decode(buf []byte) page.PageID {
	return page.PageID(int32(binary.LittleEndian.Uint32(buf)))
}
