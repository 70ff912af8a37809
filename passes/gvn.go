package passes

import "github.com/dcbaker/meson/mir"

// SSARound is GlobalValueNumbering, insert_phis, and fixup_phis fused
// into one idempotent pass (spec §4.3). The three are tightly coupled
// — phi placement depends on the merged predecessor state that
// numbering also needs, and a stale phi left behind by a pruned edge
// is just a phi that would not be re-inserted on a fresh numbering —
// so this implementation recomputes a node's phis and versions
// together whenever the node is not yet in its final state, rather
// than threading state between three separate traversals.
//
// Every lowered body in this repository is acyclic (foreach bodies
// lower to an opaque instruction, not a back-edge), so reverse
// postorder alone is a valid topological order: every predecessor of
// a node is numbered before the node itself.
type SSARound struct {
	counter map[string]uint64
}

func (p *SSARound) Name() string { return "ssa" }

func (p *SSARound) Run(pc *Context, cfg *mir.CFG) bool {
	if p.counter == nil {
		p.counter = map[string]uint64{}
	}

	progress := false
	out := make(map[int]map[string]uint64, len(cfg.Nodes))

	for _, n := range cfg.ReversePostorder() {
		node := cfg.Node(n)

		wantPhi, in := p.mergeIn(node, out)

		if node.State != mir.StatePhisFixed {
			if p.renumber(node, wantPhi, in) {
				progress = true
			}

			node.State = mir.StatePhisFixed
		}

		running := map[string]uint64{}
		for k, v := range in {
			running[k] = v
		}

		for _, inst := range node.Block.Instrs {
			if inst.Def.Name != "" {
				running[inst.Def.Name] = inst.Def.GVN
			}
		}

		out[n] = running
	}

	return progress
}

// mergeIn computes the versions visible at node's entry from its
// already-processed predecessors, and which names need a phi because
// their predecessors disagree. A name whose predecessors carry 3 or
// more distinct versions needs a chain of Phi instructions joining
// them pairwise (spec §4.3) — mergeIn hands renumber the full distinct
// version list and leaves chain construction (and phi-reuse) to it.
// Names needing a phi are left out of in; renumber resolves them once
// it knows whether an existing phi can be reused.
func (p *SSARound) mergeIn(node *mir.CFGNode, out map[int]map[string]uint64) (map[string][]uint64, map[string]uint64) {
	in := map[string]uint64{}

	preds := node.Pred.Slice()
	if len(preds) == 0 {
		return nil, in
	}

	seen := map[string][]uint64{}

	for _, pr := range preds {
		o, ok := out[pr]
		if !ok {
			continue
		}

		for name, v := range o {
			seen[name] = appendUnique(seen[name], v)
		}
	}

	wantPhi := map[string][]uint64{}

	for name, versions := range seen {
		switch len(versions) {
		case 0:
			continue
		case 1:
			in[name] = versions[0]
		default:
			wantPhi[name] = versions
		}
	}

	return wantPhi, in
}

// renumber reconciles the block's leading phis with wantPhi (reusing
// an existing phi's GVN when its Left/Right already match, so a
// node revisited without any real predecessor change does not mint
// new versions forever), then numbers every un-numbered instruction
// in the block in order. It reports whether it changed anything.
func (p *SSARound) renumber(node *mir.CFGNode, wantPhi map[string][]uint64, in map[string]uint64) bool {
	progress := false

	instrs := node.Block.Instrs

	existing := map[string][]*mir.Instruction{}

	i := 0
	for i < len(instrs) {
		if _, ok := instrs[i].Obj.(mir.Phi); !ok {
			break
		}

		name := instrs[i].Def.Name
		existing[name] = append(existing[name], instrs[i])
		i++
	}

	instrs = instrs[i:]

	var phis []*mir.Instruction

	for name, versions := range wantPhi {
		chain := p.buildPhiChain(name, versions, existing[name])
		phis = append(phis, chain...)

		in[name] = chain[len(chain)-1].Def.GVN

		if !samePhiChain(existing[name], chain) {
			progress = true
		}
	}

	existingCount := 0
	for _, ex := range existing {
		existingCount += len(ex)
	}

	if len(phis) != existingCount {
		progress = true
	}

	running := map[string]uint64{}
	for k, v := range in {
		running[k] = v
	}

	for _, inst := range instrs {
		if mir.IsTerminator(inst.Obj) {
			continue
		}

		if resolveRefs(inst, running) {
			progress = true
		}

		if inst.Def.Name != "" && inst.Def.GVN == 0 {
			p.counter[inst.Def.Name]++
			inst.Def.GVN = p.counter[inst.Def.Name]
			progress = true
		}

		if inst.Def.Name != "" {
			running[inst.Def.Name] = inst.Def.GVN
		}
	}

	if t, ok := lastTerminator(instrs); ok {
		if resolveRefs(t, running) {
			progress = true
		}
	}

	if len(phis) > 0 {
		node.Block.Instrs = append(append([]*mir.Instruction{}, phis...), instrs...)
	} else {
		node.Block.Instrs = instrs
	}

	return progress
}

// buildPhiChain joins versions (2 or more distinct predecessor
// definitions of name) pairwise into a chain of Phi instructions (spec
// §4.3): phi_0 = Phi(versions[0], versions[1]), phi_1 =
// Phi(phi_0, versions[2]), and so on. It reuses a prefix of existing
// as-is wherever its Phi still matches what the chain wants, minting a
// fresh GVN only where it doesn't.
func (p *SSARound) buildPhiChain(name string, versions []uint64, existing []*mir.Instruction) []*mir.Instruction {
	chain := make([]*mir.Instruction, 0, len(versions)-1)

	left := versions[0]

	for idx, v := range versions[1:] {
		want := mir.Phi{Left: left, Right: v}

		if idx < len(existing) {
			if oldPhi, ok := existing[idx].Obj.(mir.Phi); ok && oldPhi == want {
				chain = append(chain, existing[idx])
				left = existing[idx].Def.GVN

				continue
			}
		}

		p.counter[name]++
		nv := p.counter[name]

		inst := &mir.Instruction{
			Obj: want,
			Def: mir.Variable{Name: name, GVN: nv},
		}

		chain = append(chain, inst)
		left = nv
	}

	return chain
}

func samePhiChain(existing, chain []*mir.Instruction) bool {
	if len(existing) != len(chain) {
		return false
	}

	for idx := range chain {
		if existing[idx] != chain[idx] {
			return false
		}
	}

	return true
}

func appendUnique(l []uint64, v uint64) []uint64 {
	for _, x := range l {
		if x == v {
			return l
		}
	}

	return append(l, v)
}

func lastTerminator(instrs []*mir.Instruction) (*mir.Instruction, bool) {
	if len(instrs) == 0 {
		return nil, false
	}

	last := instrs[len(instrs)-1]
	if mir.IsTerminator(last.Obj) {
		return last, true
	}

	return nil, false
}

// resolveRefs resolves every unresolved Identifier reachable from
// inst (directly, or nested inside its Object's operands) against the
// running version map, and reports whether it changed anything.
func resolveRefs(inst *mir.Instruction, running map[string]uint64) bool {
	if inst == nil {
		return false
	}

	progress := false

	if id, ok := inst.Obj.(mir.Identifier); ok && id.GVN == 0 {
		if v, ok := running[id.Name]; ok && v != 0 {
			inst.Obj = mir.Identifier{Name: id.Name, GVN: v}
			progress = true
		}
	}

	walkNested(inst.Obj, func(child *mir.Instruction) {
		if resolveRefs(child, running) {
			progress = true
		}
	})

	return progress
}

// walkNested calls fn on every direct *Instruction operand of obj. It
// does not recurse — callers recurse through fn themselves.
func walkNested(obj mir.Object, fn func(*mir.Instruction)) {
	switch x := obj.(type) {
	case mir.Array:
		for _, e := range x.Elems {
			fn(e)
		}
	case mir.Dict:
		for _, e := range x.Entries {
			fn(e.Value)
		}
	case mir.FunctionCall:
		if x.Holder != nil {
			fn(x.Holder)
		}

		for _, a := range x.Args {
			fn(a)
		}

		for _, k := range x.KwOrder {
			if v, ok := x.KwArgs[k]; ok {
				fn(v)
			}
		}
	case mir.Executable:
		for _, s := range x.Sources {
			fn(s)
		}

		for _, s := range x.LinkWith {
			fn(s)
		}
	case mir.StaticLibrary:
		for _, s := range x.Sources {
			fn(s)
		}

		for _, s := range x.LinkWith {
			fn(s)
		}
	case mir.CustomTarget:
		for _, in := range x.Inputs {
			fn(in)
		}
	case mir.Jump:
		if x.Pred != nil {
			fn(x.Pred)
		}
	case mir.Branch:
		for _, a := range x.Arms {
			if a.Pred != nil {
				fn(a.Pred)
			}
		}
	}
}
