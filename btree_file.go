package mindb

import (
	"sort"
	"sync"
)

// btreeOrder bounds a node's key count, matching the teacher's BTreeOrder.
const (
	btreeOrder   = 128
	btreeMaxKeys = btreeOrder - 1
)

// btreeNode is a node of the in-memory B+-tree index keyed by one
// column's value. Grounded on teacher's btree.go BTreeNode, generalized
// from interface{} keys with a hardcoded comparator to Value keys
// ordered via CompareScalars, and from TupleID to FilePointer.
type btreeNode struct {
	isLeaf   bool
	keys     []Value
	children []*btreeNode
	ptrs     []FilePointer // leaf-only, parallel to keys
	next     *btreeNode    // leaf chain, for range scans
}

// BTreeTupleFile is the ordered (sequential) tuple-file variant:
// tuples live in a backing HeapTupleFile, and an in-memory B+-tree
// indexes one column for ordered/equality lookups, per spec.md §4.3.
// Grounded on teacher's btree.go Insert/splitChild/Search, adapted from a
// standalone structure into the TupleFile+SequentialTupleFile contract.
type BTreeTupleFile struct {
	mu sync.RWMutex

	heap      *HeapTupleFile
	keyColumn int
	root      *btreeNode
}

// OpenBTreeTupleFile opens (or creates) name's backing heap storage and
// rebuilds its B+-tree index over keyColumn from scratch.
func OpenBTreeTupleFile(fm *FileManager, bufMgr *BufferManager, name string, schema *Schema, keyColumn int, pageSize int) (*BTreeTupleFile, error) {
	heap, err := OpenHeapTupleFile(fm, bufMgr, name, schema, pageSize)
	if err != nil {
		return nil, err
	}
	bt := &BTreeTupleFile{
		heap:      heap,
		keyColumn: keyColumn,
		root:      &btreeNode{isLeaf: true},
	}
	if err := bt.rebuildIndex(nil); err != nil {
		return nil, err
	}
	return bt, nil
}

func (bt *BTreeTupleFile) rebuildIndex(sess *SessionHandle) error {
	bt.root = &btreeNode{isLeaf: true}
	tup, err := bt.heap.FirstTuple(sess)
	if err != nil {
		return err
	}
	for tup != nil {
		bt.insertKey(tup.Get(bt.keyColumn), tup.Pointer)
		next, err := bt.heap.NextTuple(sess, tup)
		tup.Unpin()
		if err != nil {
			return err
		}
		tup = next
	}
	return nil
}

func (bt *BTreeTupleFile) Schema() *Schema { return bt.heap.Schema() }

func (bt *BTreeTupleFile) insertKey(key Value, ptr FilePointer) {
	if len(bt.root.keys) >= btreeMaxKeys {
		oldRoot := bt.root
		bt.root = &btreeNode{isLeaf: false, children: []*btreeNode{oldRoot}}
		bt.splitChild(bt.root, 0)
	}
	bt.insertNonFull(bt.root, key, ptr)
}

func (bt *BTreeTupleFile) insertNonFull(node *btreeNode, key Value, ptr FilePointer) {
	if node.isLeaf {
		i := sort.Search(len(node.keys), func(i int) bool { c, _ := CompareScalars(node.keys[i], key); return c >= 0 })
		node.keys = append(node.keys, nil)
		node.ptrs = append(node.ptrs, FilePointer{})
		copy(node.keys[i+1:], node.keys[i:])
		copy(node.ptrs[i+1:], node.ptrs[i:])
		node.keys[i] = key
		node.ptrs[i] = ptr
		return
	}
	i := sort.Search(len(node.keys), func(i int) bool { c, _ := CompareScalars(key, node.keys[i]); return c < 0 })
	if len(node.children[i].keys) >= btreeMaxKeys {
		bt.splitChild(node, i)
		if c, _ := CompareScalars(key, node.keys[i]); c >= 0 {
			i++
		}
	}
	bt.insertNonFull(node.children[i], key, ptr)
}

func (bt *BTreeTupleFile) splitChild(parent *btreeNode, i int) {
	child := parent.children[i]
	mid := len(child.keys) / 2

	if child.isLeaf {
		right := &btreeNode{isLeaf: true, keys: append([]Value{}, child.keys[mid:]...), ptrs: append([]FilePointer{}, child.ptrs[mid:]...), next: child.next}
		child.keys = child.keys[:mid]
		child.ptrs = child.ptrs[:mid]
		child.next = right
		promoted := right.keys[0]

		parent.keys = append(parent.keys, nil)
		copy(parent.keys[i+1:], parent.keys[i:])
		parent.keys[i] = promoted
		parent.children = append(parent.children, nil)
		copy(parent.children[i+2:], parent.children[i+1:])
		parent.children[i+1] = right
		return
	}

	promoted := child.keys[mid]
	right := &btreeNode{isLeaf: false, keys: append([]Value{}, child.keys[mid+1:]...), children: append([]*btreeNode{}, child.children[mid+1:]...)}
	child.keys = child.keys[:mid]
	child.children = child.children[:mid+1]

	parent.keys = append(parent.keys, nil)
	copy(parent.keys[i+1:], parent.keys[i:])
	parent.keys[i] = promoted
	parent.children = append(parent.children, nil)
	copy(parent.children[i+2:], parent.children[i+1:])
	parent.children[i+1] = right
}

func (bt *BTreeTupleFile) leafContaining(key Value) *btreeNode {
	node := bt.root
	for !node.isLeaf {
		i := sort.Search(len(node.keys), func(i int) bool { c, _ := CompareScalars(key, node.keys[i]); return c < 0 })
		node = node.children[i]
	}
	return node
}

func (bt *BTreeTupleFile) firstLeaf() *btreeNode {
	node := bt.root
	for !node.isLeaf {
		if len(node.children) == 0 {
			return node
		}
		node = node.children[0]
	}
	return node
}

// FindFirstEqual returns the first (in key order) tuple whose indexed
// column equals key, or nil if none match.
func (bt *BTreeTupleFile) FindFirstEqual(sess *SessionHandle, key Value) (*Tuple, error) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	leaf := bt.leafContaining(key)
	i := sort.Search(len(leaf.keys), func(i int) bool { c, _ := CompareScalars(leaf.keys[i], key); return c >= 0 })
	if i >= len(leaf.keys) {
		return nil, nil
	}
	if c, _ := CompareScalars(leaf.keys[i], key); c != 0 {
		return nil, nil
	}
	return bt.heap.GetTuple(sess, leaf.ptrs[i])
}

// FindFirstGreaterThan returns the first tuple whose indexed column is >
// key (or >= key when orEqual), or nil past the end.
func (bt *BTreeTupleFile) FindFirstGreaterThan(sess *SessionHandle, key Value, orEqual bool) (*Tuple, error) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	leaf := bt.leafContaining(key)
	for leaf != nil {
		for i, k := range leaf.keys {
			c, _ := CompareScalars(k, key)
			if c > 0 || (orEqual && c == 0) {
				return bt.heap.GetTuple(sess, leaf.ptrs[i])
			}
		}
		leaf = leaf.next
	}
	return nil, nil
}

func (bt *BTreeTupleFile) FirstTuple(sess *SessionHandle) (*Tuple, error) {
	bt.mu.RLock()
	leaf := bt.firstLeaf()
	bt.mu.RUnlock()
	if leaf == nil || len(leaf.ptrs) == 0 {
		return nil, nil
	}
	return bt.heap.GetTuple(sess, leaf.ptrs[0])
}

// NextTuple walks the index's key order, not physical page order.
func (bt *BTreeTupleFile) NextTuple(sess *SessionHandle, cur *Tuple) (*Tuple, error) {
	key := cur.Get(bt.keyColumn)
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	leaf := bt.leafContaining(key)
	for leaf != nil {
		for i, k := range leaf.keys {
			c, _ := CompareScalars(k, key)
			if c == 0 && leaf.ptrs[i] == cur.Pointer {
				if i+1 < len(leaf.keys) {
					return bt.heap.GetTuple(sess, leaf.ptrs[i+1])
				}
				if leaf.next != nil && len(leaf.next.ptrs) > 0 {
					return bt.heap.GetTuple(sess, leaf.next.ptrs[0])
				}
				return nil, nil
			}
		}
		leaf = leaf.next
	}
	return nil, nil
}

func (bt *BTreeTupleFile) GetTuple(sess *SessionHandle, ptr FilePointer) (*Tuple, error) {
	return bt.heap.GetTuple(sess, ptr)
}

func (bt *BTreeTupleFile) AddTuple(sess *SessionHandle, values []Value) (*Tuple, error) {
	t, err := bt.heap.AddTuple(sess, values)
	if err != nil {
		return nil, err
	}
	bt.mu.Lock()
	bt.insertKey(t.Get(bt.keyColumn), t.Pointer)
	bt.mu.Unlock()
	return t, nil
}

// UpdateTuple rewrites the row in the backing heap, then rebuilds the
// whole index, whether or not the key column changed.
func (bt *BTreeTupleFile) UpdateTuple(sess *SessionHandle, ptr FilePointer, values []Value) error {
	if err := bt.heap.UpdateTuple(sess, ptr, values); err != nil {
		return err
	}
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.rebuildIndex(sess)
}

func (bt *BTreeTupleFile) DeleteTuple(sess *SessionHandle, ptr FilePointer) error {
	if err := bt.heap.DeleteTuple(sess, ptr); err != nil {
		return err
	}
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.rebuildIndex(sess)
}

func (bt *BTreeTupleFile) Analyze(sess *SessionHandle) error {
	if err := bt.heap.Analyze(sess); err != nil {
		return err
	}
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.rebuildIndex(sess)
}

func (bt *BTreeTupleFile) Verify(sess *SessionHandle) []error {
	return bt.heap.Verify(sess)
}

func (bt *BTreeTupleFile) Optimize(sess *SessionHandle) error {
	return bt.heap.Optimize(sess)
}

func (bt *BTreeTupleFile) Stats() FileStats { return bt.heap.Stats() }

func (bt *BTreeTupleFile) Close() error { return bt.heap.Close() }
