package mir

import "github.com/dcbaker/meson/set"

// NodeState tracks how far a CFGNode has progressed through the SSA
// sub-pipeline (spec §4.10). Branch pruning and join_blocks may reset
// a node back to StateUnnumbered; that is expected, not a bug — the
// driver reruns SSA passes to fixpoint.
type NodeState int

const (
	StateUnnumbered NodeState = iota
	StateNumbered
	StatePhisInserted
	StatePhisFixed
)

// BasicBlock is a maximal straight-line instruction sequence. It ends
// with either no terminator (fall off the end of the program) or
// exactly one terminator as its last instruction.
type BasicBlock struct {
	Instrs []*Instruction
}

// Terminator returns the block's terminating Jump/Branch instruction,
// if the block has one.
func (b *BasicBlock) Terminator() (*Instruction, bool) {
	if len(b.Instrs) == 0 {
		return nil, false
	}

	last := b.Instrs[len(b.Instrs)-1]
	if IsTerminator(last.Obj) {
		return last, true
	}

	return nil, false
}

// Append adds i to the end of the block. It does not check for an
// existing terminator; CFG.SetTerminator installs or replaces one and
// keeps the edges in step.
func (b *BasicBlock) Append(i *Instruction) {
	b.Instrs = append(b.Instrs, i)
}

// CFGNode owns a BasicBlock and the index-addressed edges into and out
// of it. Pred/Succ store node indices, not owning pointers — the arena
// design note in spec §9.
type CFGNode struct {
	Index int
	Block *BasicBlock
	Pred  set.Bitmap
	Succ  set.Bitmap
	State NodeState
	Dead  bool
}

// CFG is the arena of CFGNodes for one function/program body. Nodes
// are addressed by their Index into CFG.Nodes; a deleted node's slot
// is kept with Dead == true and an empty block rather than compacted,
// so older indices stay valid.
type CFG struct {
	Nodes []*CFGNode
	Entry int
}

func NewCFG() *CFG {
	c := &CFG{}
	c.Entry = c.newNode()

	return c
}

func (c *CFG) newNode() int {
	idx := len(c.Nodes)
	c.Nodes = append(c.Nodes, &CFGNode{
		Index: idx,
		Block: &BasicBlock{},
		Pred:  set.MakeBitmap(8),
		Succ:  set.MakeBitmap(8),
	})

	return idx
}

// NewNode allocates a fresh, edge-less node and returns its index.
func (c *CFG) NewNode() int { return c.newNode() }

func (c *CFG) Node(i int) *CFGNode { return c.Nodes[i] }

// AddEdge links from -> to on both sides. It is the only way edges
// should be created, so Pred/Succ never go out of sync (spec §3
// invariant).
func (c *CFG) AddEdge(from, to int) {
	c.Nodes[from].Succ.Set(to)
	c.Nodes[to].Pred.Set(from)
}

// RemoveEdge unlinks from -> to on both sides.
func (c *CFG) RemoveEdge(from, to int) {
	c.Nodes[from].Succ.Clear(to)
	c.Nodes[to].Pred.Clear(from)
}

// targets extracts the successor node indices a terminator Object
// names.
func targets(obj Object) []int {
	switch t := obj.(type) {
	case Jump:
		return []int{t.Target}
	case Branch:
		l := make([]int, len(t.Arms))
		for i, a := range t.Arms {
			l[i] = a.Target
		}

		return l
	default:
		return nil
	}
}

// SetTerminator replaces node n's terminator (if any) with obj and
// reconciles Succ/Pred on both endpoints in one step, so no caller can
// forget to update one side of an edge (spec §9).
func (c *CFG) SetTerminator(n int, obj Object) {
	node := c.Nodes[n]

	var old []int
	if t, ok := node.Block.Terminator(); ok {
		old = targets(t.Obj)
	}

	nw := targets(obj)

	oldSet := map[int]bool{}
	for _, t := range old {
		oldSet[t] = true
	}

	newSet := map[int]bool{}
	for _, t := range nw {
		newSet[t] = true
	}

	for t := range oldSet {
		if !newSet[t] {
			c.RemoveEdge(n, t)
		}
	}

	for t := range newSet {
		if !oldSet[t] {
			c.AddEdge(n, t)
		}
	}

	inst := NewInstruction(obj)

	if _, ok := node.Block.Terminator(); ok {
		node.Block.Instrs[len(node.Block.Instrs)-1] = inst
	} else {
		node.Block.Append(inst)
	}
}

// RemoveTerminator deletes node n's terminator instruction (if any)
// and unlinks every outgoing edge it implied.
func (c *CFG) RemoveTerminator(n int) {
	node := c.Nodes[n]

	t, ok := node.Block.Terminator()
	if !ok {
		return
	}

	for _, to := range targets(t.Obj) {
		c.RemoveEdge(n, to)
	}

	node.Block.Instrs = node.Block.Instrs[:len(node.Block.Instrs)-1]
}

// DeleteNode removes a node from the graph: every remaining edge on
// either side is unlinked and the node is marked Dead. Its index is
// never reused.
func (c *CFG) DeleteNode(n int) {
	node := c.Nodes[n]

	node.Succ.Range(func(to int) bool {
		c.Nodes[to].Pred.Clear(n)
		return true
	})

	node.Pred.Range(func(from int) bool {
		c.Nodes[from].Succ.Clear(n)
		return true
	})

	node.Succ = set.MakeBitmap(0)
	node.Pred = set.MakeBitmap(0)
	node.Block = &BasicBlock{}
	node.Dead = true
}

// AppendFrom moves all instructions of node src onto node dst and
// re-parents src's successors to originate from dst — the merge step
// of join_blocks (spec §4.7). It does not delete src; the caller does,
// once it has re-pointed predecessors too.
func (c *CFG) AppendFrom(dst, src int) {
	dn, sn := c.Nodes[dst], c.Nodes[src]

	dn.Block.Instrs = append(dn.Block.Instrs, sn.Block.Instrs...)

	sn.Succ.Range(func(to int) bool {
		c.RemoveEdge(src, to)
		c.AddEdge(dst, to)

		return true
	})
}
