package btree

import (
	"encoding/binary"

	"github.com/sushant-115/kagedb/core/storage/page"
)

// On-page node layout. Every B+tree page starts with the common header:
//
//	offset  0: page type (u8), 1 = leaf, 2 = internal
//	offset  1: lsn (u32)
//	offset  5: size (i32)
//	offset  9: max size (i32)
//	offset 13: parent page id (i32)
//	offset 17: page id (i32)
//
// Leaves continue with next page id (i32) at offset 21, then the packed
// (key, value) array. Internals pack the (key, child id) array straight
// after the header; the key of slot 0 is meaningful only from index 1 on.
const (
	pageTypeLeaf     byte = 1
	pageTypeInternal byte = 2

	offsetPageType = 0
	offsetLSN      = 1
	offsetSize     = 5
	offsetMaxSize  = 9
	offsetParent   = 13
	offsetPageID   = 17
	nodeHeaderSize = 21

	offsetNextPageID = 21
	leafHeaderSize   = 25
)

func getInt32(data []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(data[off : off+4]))
}

func putInt32(data []byte, off int, v int32) {
	binary.LittleEndian.PutUint32(data[off:off+4], uint32(v))
}

// nodePage is the untyped header view shared by leaf and internal nodes.
type nodePage struct {
	p *page.Page
}

func asNode(p *page.Page) nodePage { return nodePage{p: p} }

func (n nodePage) isLeaf() bool { return n.p.GetData()[offsetPageType] == pageTypeLeaf }

func (n nodePage) size() int        { return int(getInt32(n.p.GetData(), offsetSize)) }
func (n nodePage) setSize(s int)    { putInt32(n.p.GetData(), offsetSize, int32(s)) }
func (n nodePage) incSize(by int)   { n.setSize(n.size() + by) }
func (n nodePage) decSize(by int)   { n.setSize(n.size() - by) }
func (n nodePage) maxSize() int     { return int(getInt32(n.p.GetData(), offsetMaxSize)) }
func (n nodePage) setMaxSize(m int) { putInt32(n.p.GetData(), offsetMaxSize, int32(m)) }

// minSize is the occupancy floor for non-root nodes: ceil(max/2) for
// internals, ceil((max-1)/2) for leaves.
func (n nodePage) minSize() int {
	if n.isLeaf() {
		return n.maxSize() / 2
	}
	return (n.maxSize() + 1) / 2
}

func (n nodePage) parent() page.PageID {
	return page.PageID(getInt32(n.p.GetData(), offsetParent))
}

func (n nodePage) setParent(id page.PageID) {
	putInt32(n.p.GetData(), offsetParent, int32(id))
}

func (n nodePage) pageID() page.PageID {
	return page.PageID(getInt32(n.p.GetData(), offsetPageID))
}

func (n nodePage) setPageID(id page.PageID) {
	putInt32(n.p.GetData(), offsetPageID, int32(id))
}

func (n nodePage) isRoot() bool { return n.parent() == page.InvalidPageID }

func (n nodePage) lsn() page.LSN {
	return page.LSN(binary.LittleEndian.Uint32(n.p.GetData()[offsetLSN : offsetLSN+4]))
}

func (n nodePage) setLSN(lsn page.LSN) {
	binary.LittleEndian.PutUint32(n.p.GetData()[offsetLSN:offsetLSN+4], uint32(lsn))
}

func (n nodePage) initHeader(t byte, id, parent page.PageID, maxSize int) {
	n.p.GetData()[offsetPageType] = t
	n.setLSN(0)
	n.setSize(0)
	n.setMaxSize(maxSize)
	n.setParent(parent)
	n.setPageID(id)
}

// leafNode is the typed view over a leaf page.
type leafNode[K, V any] struct {
	nodePage
	keyc Codec[K]
	valc Codec[V]
}

func (n leafNode[K, V]) init(id, parent page.PageID, maxSize int) {
	n.initHeader(pageTypeLeaf, id, parent, maxSize)
	n.setNextPageID(page.InvalidPageID)
}

func (n leafNode[K, V]) nextPageID() page.PageID {
	return page.PageID(getInt32(n.p.GetData(), offsetNextPageID))
}

func (n leafNode[K, V]) setNextPageID(id page.PageID) {
	putInt32(n.p.GetData(), offsetNextPageID, int32(id))
}

func (n leafNode[K, V]) entryOffset(i int) int {
	return leafHeaderSize + i*(n.keyc.Size()+n.valc.Size())
}

func (n leafNode[K, V]) keyAt(i int) K {
	off := n.entryOffset(i)
	return n.keyc.Decode(n.p.GetData()[off:])
}

func (n leafNode[K, V]) valueAt(i int) V {
	off := n.entryOffset(i) + n.keyc.Size()
	return n.valc.Decode(n.p.GetData()[off:])
}

func (n leafNode[K, V]) setKeyValue(i int, k K, v V) {
	off := n.entryOffset(i)
	n.keyc.Encode(n.p.GetData()[off:], k)
	n.valc.Encode(n.p.GetData()[off+n.keyc.Size():], v)
}

func (n leafNode[K, V]) copyEntry(dst, src int) {
	a, b := n.entryOffset(dst), n.entryOffset(src)
	w := n.keyc.Size() + n.valc.Size()
	copy(n.p.GetData()[a:a+w], n.p.GetData()[b:b+w])
}

// insert places (k, v) at its sorted position, shifting later entries
// right. The caller checks for duplicates and capacity beforehand.
func (n leafNode[K, V]) insert(k K, v V, cmp Comparator[K]) {
	size := n.size()
	idx := 0
	for idx < size && cmp(n.keyAt(idx), k) < 0 {
		idx++
	}
	for i := size; i > idx; i-- {
		n.copyEntry(i, i-1)
	}
	n.setKeyValue(idx, k, v)
	n.incSize(1)
}

// remove deletes the entry for k, shifting later entries left. It
// reports whether the key was present.
func (n leafNode[K, V]) remove(k K, cmp Comparator[K]) bool {
	size := n.size()
	idx := 0
	for idx < size && cmp(n.keyAt(idx), k) != 0 {
		idx++
	}
	if idx == size {
		return false
	}
	for i := idx; i < size-1; i++ {
		n.copyEntry(i, i+1)
	}
	n.decSize(1)
	return true
}

// moveHalf moves entries [from, size) into dst, which must be empty.
func (n leafNode[K, V]) moveHalf(dst leafNode[K, V], from int) {
	size := n.size()
	j := 0
	for i := from; i < size; i++ {
		dst.setKeyValue(j, n.keyAt(i), n.valueAt(i))
		j++
	}
	dst.setSize(j)
	n.setSize(size - j)
}

// moveAll appends every entry to the end of dst and empties this node.
func (n leafNode[K, V]) moveAll(dst leafNode[K, V]) {
	j := dst.size()
	size := n.size()
	for i := 0; i < size; i++ {
		dst.setKeyValue(j, n.keyAt(i), n.valueAt(i))
		j++
	}
	dst.setSize(j)
	n.setSize(0)
}

// shiftLeft drops slot 0, moving every later entry one slot down.
func (n leafNode[K, V]) shiftLeft() {
	size := n.size()
	for i := 0; i < size-1; i++ {
		n.copyEntry(i, i+1)
	}
	n.decSize(1)
}

// internalNode is the typed view over an internal page. Values are child
// page ids; slot 0 carries only a child.
type internalNode[K any] struct {
	nodePage
	keyc Codec[K]
}

var childCodec pageIDCodec

func (n internalNode[K]) init(id, parent page.PageID, maxSize int) {
	n.initHeader(pageTypeInternal, id, parent, maxSize)
}

func (n internalNode[K]) entryOffset(i int) int {
	return nodeHeaderSize + i*(n.keyc.Size()+childCodec.Size())
}

func (n internalNode[K]) keyAt(i int) K {
	off := n.entryOffset(i)
	return n.keyc.Decode(n.p.GetData()[off:])
}

func (n internalNode[K]) setKeyAt(i int, k K) {
	off := n.entryOffset(i)
	n.keyc.Encode(n.p.GetData()[off:], k)
}

func (n internalNode[K]) valueAt(i int) page.PageID {
	off := n.entryOffset(i) + n.keyc.Size()
	return childCodec.Decode(n.p.GetData()[off:])
}

func (n internalNode[K]) setValueAt(i int, id page.PageID) {
	off := n.entryOffset(i) + n.keyc.Size()
	childCodec.Encode(n.p.GetData()[off:], id)
}

func (n internalNode[K]) copyEntry(dst, src int) {
	a, b := n.entryOffset(dst), n.entryOffset(src)
	w := n.keyc.Size() + childCodec.Size()
	copy(n.p.GetData()[a:a+w], n.p.GetData()[b:b+w])
}

// insert places (k, child) at its sorted position from slot 1 on.
func (n internalNode[K]) insert(k K, child page.PageID, cmp Comparator[K]) {
	size := n.size()
	idx := 1
	for idx < size && cmp(n.keyAt(idx), k) < 0 {
		idx++
	}
	for i := size; i > idx; i-- {
		n.copyEntry(i, i-1)
	}
	n.setKeyAt(idx, k)
	n.setValueAt(idx, child)
	n.incSize(1)
}

// remove deletes the slot keyed k (searched from index 1), reporting
// whether it was present.
func (n internalNode[K]) remove(k K, cmp Comparator[K]) bool {
	size := n.size()
	idx := 1
	for idx < size && cmp(n.keyAt(idx), k) != 0 {
		idx++
	}
	if idx == size {
		return false
	}
	for i := idx; i < size-1; i++ {
		n.copyEntry(i, i+1)
	}
	n.decSize(1)
	return true
}

// lookup picks the child to descend into for key: the rightmost child if
// every separator is <= key, otherwise the child left of the first
// separator greater than key.
func (n internalNode[K]) lookup(k K, cmp Comparator[K]) page.PageID {
	size := n.size()
	next := n.valueAt(size - 1)
	for i := 1; i < size; i++ {
		if cmp(n.keyAt(i), k) > 0 {
			next = n.valueAt(i - 1)
			break
		}
	}
	return next
}

// findValueIndex locates the slot pointing at child, or -1.
func (n internalNode[K]) findValueIndex(child page.PageID) int {
	size := n.size()
	for i := 0; i < size; i++ {
		if n.valueAt(i) == child {
			return i
		}
	}
	return -1
}

// shiftLeft drops slot 0, moving every later slot one down.
func (n internalNode[K]) shiftLeft() {
	size := n.size()
	for i := 0; i < size-1; i++ {
		n.copyEntry(i, i+1)
	}
	n.decSize(1)
}

// shiftRight opens a hole at slot 0, moving every slot one up.
func (n internalNode[K]) shiftRight() {
	for i := n.size(); i > 0; i-- {
		n.copyEntry(i, i-1)
	}
	n.incSize(1)
}

// moveAll appends slots [1, size) to the end of dst and empties this
// node. Slot 0's child must already have been carried over with its
// separator by the caller.
func (n internalNode[K]) moveAll(dst internalNode[K]) {
	j := dst.size()
	size := n.size()
	for i := 1; i < size; i++ {
		dst.setKeyAt(j, n.keyAt(i))
		dst.setValueAt(j, n.valueAt(i))
		j++
	}
	dst.setSize(j)
	n.setSize(0)
}
