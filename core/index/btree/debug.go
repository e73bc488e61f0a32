package btree

import (
	"fmt"
	"io"

	"github.com/sushant-115/kagedb/core/storage/page"
)

// PrintTree writes a plain-text dump of every node, depth-first in
// pre-order, for debugging. It holds the root latch in read mode but
// takes no page latches.
func (t *BPlusTree[K, V]) PrintTree(w io.Writer) error {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	if t.isEmpty() {
		fmt.Fprintln(w, "(empty tree)")
		return nil
	}
	return t.printNode(w, t.rootPageID)
}

func (t *BPlusTree[K, V]) printNode(w io.Writer, id page.PageID) error {
	p, err := t.bpm.FetchPage(id)
	if err != nil {
		return err
	}
	n := asNode(p)
	if n.isLeaf() {
		leaf := t.asLeaf(p)
		fmt.Fprintf(w, "Leaf %d parent=%d next=%d:", id, leaf.parent(), leaf.nextPageID())
		for i := 0; i < leaf.size(); i++ {
			fmt.Fprintf(w, " %v", leaf.keyAt(i))
		}
		fmt.Fprintln(w)
		t.bpm.UnpinPage(id, false)
		return nil
	}
	inner := t.asInternal(p)
	fmt.Fprintf(w, "Internal %d parent=%d:", id, inner.parent())
	for i := 0; i < inner.size(); i++ {
		if i == 0 {
			fmt.Fprintf(w, " (_:%d)", inner.valueAt(i))
		} else {
			fmt.Fprintf(w, " (%v:%d)", inner.keyAt(i), inner.valueAt(i))
		}
	}
	fmt.Fprintln(w)
	size := inner.size()
	children := make([]page.PageID, size)
	for i := 0; i < size; i++ {
		children[i] = inner.valueAt(i)
	}
	t.bpm.UnpinPage(id, false)
	for _, child := range children {
		if err := t.printNode(w, child); err != nil {
			return err
		}
	}
	return nil
}

// ToGraph renders the tree as a Graphviz dot document.
func (t *BPlusTree[K, V]) ToGraph(w io.Writer) error {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	fmt.Fprintln(w, "digraph G {")
	if !t.isEmpty() {
		if err := t.graphNode(w, t.rootPageID); err != nil {
			return err
		}
	}
	fmt.Fprintln(w, "}")
	return nil
}

func (t *BPlusTree[K, V]) graphNode(w io.Writer, id page.PageID) error {
	p, err := t.bpm.FetchPage(id)
	if err != nil {
		return err
	}
	n := asNode(p)
	if n.isLeaf() {
		leaf := t.asLeaf(p)
		fmt.Fprintf(w, "  leaf%d [shape=record label=\"", id)
		for i := 0; i < leaf.size(); i++ {
			if i > 0 {
				fmt.Fprint(w, "|")
			}
			fmt.Fprintf(w, "%v", leaf.keyAt(i))
		}
		fmt.Fprintln(w, "\"];")
		if next := leaf.nextPageID(); next != page.InvalidPageID {
			fmt.Fprintf(w, "  leaf%d -> leaf%d [constraint=false];\n", id, next)
		}
		t.bpm.UnpinPage(id, false)
		return nil
	}
	inner := t.asInternal(p)
	fmt.Fprintf(w, "  int%d [shape=record label=\"", id)
	for i := 0; i < inner.size(); i++ {
		if i > 0 {
			fmt.Fprintf(w, "|%v", inner.keyAt(i))
		} else {
			fmt.Fprint(w, "_")
		}
	}
	fmt.Fprintln(w, "\"];")
	size := inner.size()
	children := make([]page.PageID, size)
	for i := 0; i < size; i++ {
		children[i] = inner.valueAt(i)
	}
	t.bpm.UnpinPage(id, false)
	for _, child := range children {
		childPage, err := t.bpm.FetchPage(child)
		if err != nil {
			return err
		}
		childIsLeaf := asNode(childPage).isLeaf()
		t.bpm.UnpinPage(child, false)
		if childIsLeaf {
			fmt.Fprintf(w, "  int%d -> leaf%d;\n", id, child)
		} else {
			fmt.Fprintf(w, "  int%d -> int%d;\n", id, child)
		}
		if err := t.graphNode(w, child); err != nil {
			return err
		}
	}
	return nil
}
