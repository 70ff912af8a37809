package passes

import "github.com/dcbaker/meson/mir"

// ConstantPropagation replaces a resolved Identifier use with the
// literal it's known to refer to, so ConstantFolding — which only
// ever looks at an instruction's immediate operands — can see through
// a chain of assignments like `x = 3` / `y = x + 1` (spec §4.5). An
// alias definition such as `y = x` stays an Identifier; a later use of
// y is given x's literal through it.
type ConstantPropagation struct{}

func (ConstantPropagation) Name() string { return "constant_propagation" }

func (ConstantPropagation) Run(pc *Context, cfg *mir.CFG) bool {
	defs := map[mir.Variable]mir.Object{}

	for _, n := range cfg.ReversePostorder() {
		for _, inst := range cfg.Node(n).Block.Instrs {
			if inst.Def.Name == "" || inst.Def.GVN == 0 {
				continue
			}

			if mir.IsLiteral(inst.Obj) {
				defs[inst.Def] = inst.Obj
			} else if id, ok := inst.Obj.(mir.Identifier); ok && id.GVN != 0 {
				if lit, ok := defs[mir.Variable{Name: id.Name, GVN: id.GVN}]; ok {
					defs[inst.Def] = lit
				}
			}
		}
	}

	if len(defs) == 0 {
		return false
	}

	progress := false

	for _, n := range cfg.ReversePostorder() {
		for _, inst := range cfg.Node(n).Block.Instrs {
			if _, alias := inst.Obj.(mir.Identifier); alias && inst.Def.Name != "" {
				continue
			}

			if propagate(inst, defs) {
				progress = true
			}
		}
	}

	return progress
}

func propagate(inst *mir.Instruction, defs map[mir.Variable]mir.Object) bool {
	if inst == nil {
		return false
	}

	progress := false

	if id, ok := inst.Obj.(mir.Identifier); ok && id.GVN != 0 {
		if lit, ok := defs[mir.Variable{Name: id.Name, GVN: id.GVN}]; ok {
			inst.Obj = lit
			progress = true
		}
	}

	walkNested(inst.Obj, func(child *mir.Instruction) {
		if propagate(child, defs) {
			progress = true
		}
	})

	return progress
}
