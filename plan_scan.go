package mindb

import "math"

// FileScanNode reads every tuple of a TupleFile in file order. Grounded
// directly on spec.md §4.5's scan-node description; the teacher has no
// pull-based scan node to adapt (its queries walk a HeapFile directly).
type FileScanNode struct {
	basePlanNode

	File  TupleFile
	Alias string
	sess  *SessionHandle

	cur      *Tuple
	marked   *Tuple
	exhaust  bool
}

// NewFileScanNode builds a scan over file, aliased as alias for column
// resolution (empty alias keeps the file's own table-qualified names).
func NewFileScanNode(file TupleFile, alias string, sess *SessionHandle) *FileScanNode {
	return &FileScanNode{File: file, Alias: alias, sess: sess}
}

func (n *FileScanNode) Prepare() error {
	n.schema = n.File.Schema()
	stats := n.File.Stats()
	n.cost = PlanCost{
		NumTuples:   float64(stats.NumTuples),
		NumBlockIOs: float64(stats.NumPages),
		CPUCost:     float64(stats.NumTuples),
	}
	return nil
}

func (n *FileScanNode) Initialize() error {
	n.unpinCur()
	n.exhaust = false
	t, err := n.File.FirstTuple(n.sess)
	if err != nil {
		return err
	}
	n.cur = t
	if t == nil {
		n.exhaust = true
	}
	return nil
}

func (n *FileScanNode) unpinCur() {
	if n.cur != nil {
		n.cur.Unpin()
		n.cur = nil
	}
}

func (n *FileScanNode) GetNextTuple() (*Tuple, error) {
	if n.exhaust || n.cur == nil {
		return nil, nil
	}
	out := n.cur
	next, err := n.File.NextTuple(n.sess, n.cur)
	if err != nil {
		return nil, err
	}
	n.cur = next
	if next == nil {
		n.exhaust = true
	}
	return out, nil
}

func (n *FileScanNode) MarkCurrentPosition() error {
	n.marked = n.cur
	return nil
}

func (n *FileScanNode) ResetToLastMark() error {
	n.cur = n.marked
	n.exhaust = n.cur == nil
	return nil
}

func (n *FileScanNode) CleanUp() error {
	n.unpinCur()
	return nil
}

func (n *FileScanNode) AddParentEnvironmentToPlanTree(env *Environment) error { return nil }

func (n *FileScanNode) String() string { return "FileScan(" + n.Alias + ")" }

// IndexScanNode answers an equality predicate on an indexed column
// directly from a SequentialTupleFile/HashedTupleFile, without visiting
// non-matching tuples; range predicates are not served by this node —
// spec.md §4.5's index-assisted access
// path, and the open-question-resolved cost formula from DESIGN.md.
type IndexScanNode struct {
	basePlanNode

	Seq   SequentialTupleFile // nil if Hash is set
	Hash  HashedTupleFile     // nil if Seq is set
	Key   Value
	sess  *SessionHandle

	results []*Tuple
	pos     int
	marked  int
}

// NewEqualityIndexScan builds a scan that returns every tuple whose
// indexed column equals key, via whichever index capability file
// exposes.
func NewEqualityIndexScan(file TupleFile, key Value, sess *SessionHandle) (*IndexScanNode, error) {
	n := &IndexScanNode{Key: key, sess: sess}
	if seq, ok := file.(SequentialTupleFile); ok {
		n.Seq = seq
		return n, nil
	}
	if hash, ok := file.(HashedTupleFile); ok {
		n.Hash = hash
		return n, nil
	}
	return nil, NewError(KindExecution, "file does not support indexed equality lookup")
}

func (n *IndexScanNode) Prepare() error {
	if n.Seq != nil {
		n.schema = n.Seq.Schema()
		n.ordered = nil
	} else {
		n.schema = n.Hash.Schema()
	}
	stats := fileStatsOf(n)
	matching := 1.0
	if stats.NumTuples > 0 {
		matching = math.Max(1, float64(stats.NumTuples)/10)
	}
	var blockIOs float64
	if n.Seq != nil {
		leaves := math.Max(1, float64(stats.NumTuples)/100)
		blockIOs = math.Ceil(math.Log(math.Max(leaves, 2))/math.Log(128)) + matching
	} else {
		blockIOs = 1 + matching
	}
	n.cost = PlanCost{NumTuples: matching, NumBlockIOs: blockIOs, CPUCost: matching}
	return nil
}

func fileStatsOf(n *IndexScanNode) FileStats {
	if n.Seq != nil {
		return n.Seq.Stats()
	}
	return n.Hash.Stats()
}

func (n *IndexScanNode) Initialize() error {
	for _, t := range n.results {
		t.Unpin()
	}
	n.results = nil
	n.pos = 0

	if n.Seq != nil {
		t, err := n.Seq.FindFirstEqual(n.sess, n.Key)
		if err != nil {
			return err
		}
		stop, err := n.Seq.FindFirstGreaterThan(n.sess, n.Key, false)
		if err != nil {
			if t != nil {
				t.Unpin()
			}
			return err
		}
		for t != nil && (stop == nil || t.Pointer != stop.Pointer) {
			n.results = append(n.results, t)
			if t, err = n.Seq.NextTuple(n.sess, t); err != nil {
				return err
			}
		}
		if t != nil {
			t.Unpin()
		}
		if stop != nil {
			stop.Unpin()
		}
		return nil
	}
	results, err := n.Hash.FindEqual(n.sess, n.Key)
	if err != nil {
		return err
	}
	n.results = results
	return nil
}

func (n *IndexScanNode) GetNextTuple() (*Tuple, error) {
	if n.pos >= len(n.results) {
		return nil, nil
	}
	t := n.results[n.pos]
	n.pos++
	return t, nil
}

func (n *IndexScanNode) MarkCurrentPosition() error { n.marked = n.pos; return nil }
func (n *IndexScanNode) ResetToLastMark() error     { n.pos = n.marked; return nil }

func (n *IndexScanNode) CleanUp() error {
	for i := n.pos; i < len(n.results); i++ {
		n.results[i].Unpin()
	}
	n.results = nil
	return nil
}

func (n *IndexScanNode) AddParentEnvironmentToPlanTree(env *Environment) error { return nil }

func (n *IndexScanNode) String() string { return "IndexScan" }
