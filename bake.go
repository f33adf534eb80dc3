package granite

import (
	"fmt"
)

// Bake turns the declared graph into an execution plan: the ordered
// pass list, physical resource assignments, merged physical passes,
// render-pass descriptors and barriers. All validation happens here;
// on error no partial plan is left in place.
func (g *RenderGraph) Bake() error {
	g.clearPlan()

	if g.declErr != nil {
		return g.declErr
	}
	if g.backbufferSource == "" {
		return ErrNoBackbufferSource
	}

	idx, ok := g.resourceToIndex[g.backbufferSource]
	if !ok {
		return fmt.Errorf("%w: backbuffer source %q was never declared", ErrUnproducedResource, g.backbufferSource)
	}
	backbuffer := g.resources[idx].base()
	if len(backbuffer.writtenInPasses) == 0 {
		return fmt.Errorf("%w: backbuffer source %q", ErrUnproducedResource, g.backbufferSource)
	}

	order, err := g.traverseDependencies(backbuffer)
	if err != nil {
		g.clearPlan()
		return err
	}
	g.passStack = filterPasses(order)

	if err := g.validatePasses(); err != nil {
		g.clearPlan()
		return err
	}
	if err := g.buildPhysicalResources(); err != nil {
		g.clearPlan()
		return err
	}
	g.buildPhysicalPasses()
	g.buildTransients()
	g.buildRenderPassInfo()
	g.buildBarriers()
	g.buildPhysicalBarriers()

	g.baked = true
	return nil
}

// traverseState colors passes during dependency traversal.
type traverseState uint8

const (
	notVisited traverseState = iota
	onPath
	visited
)

// traverseDependencies walks producer edges backwards from the
// backbuffer source and returns the passes needed to produce it, in
// dependency order (producers first). A back-edge to a pass on the
// current path is a cycle; a pass among the producers of its own
// inputs is a self-dependency.
func (g *RenderGraph) traverseDependencies(backbuffer *resourceBase) ([]int, error) {
	state := make([]traverseState, len(g.passes))
	order := make([]int, 0, len(g.passes))

	var visit func(passIndex int) error
	visit = func(passIndex int) error {
		switch state[passIndex] {
		case visited:
			return nil
		case onPath:
			return fmt.Errorf("%w: via pass %q", ErrCycle, g.passes[passIndex].name)
		}
		state[passIndex] = onPath

		pass := g.passes[passIndex]
		for _, resIndex := range pass.inputResources() {
			res := g.resources[resIndex].base()
			for _, writer := range sortedKeys(res.writtenInPasses) {
				if writer == passIndex {
					return fmt.Errorf("%w: pass %q reads and writes %q",
						ErrSelfDependency, pass.name, res.name)
				}
				if err := visit(writer); err != nil {
					return err
				}
			}
		}

		state[passIndex] = visited
		order = append(order, passIndex)
		return nil
	}

	for _, writer := range sortedKeys(backbuffer.writtenInPasses) {
		if err := visit(writer); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// inputResources returns every resource index the pass depends on
// within the current frame. History inputs are excluded: they refer to
// the previous frame and contribute no ordering edge.
func (p *RenderPass) inputResources() []int {
	var out []int
	add := func(indices []int) {
		for _, idx := range indices {
			if idx != Unused {
				out = append(out, idx)
			}
		}
	}
	add(p.colorInputs)
	add(p.colorScaleInputs)
	add(p.attachmentInputs)
	add(p.textureInputs)
	add(p.storageTextureInputs)
	add(p.uniformInputs)
	add(p.storageInputs)
	add(p.storageReadInputs)
	if p.depthStencilInput != Unused {
		out = append(out, p.depthStencilInput)
	}
	return out
}

// sortedKeys returns map keys in ascending order so traversal and the
// resulting plan are deterministic.
func sortedKeys(m map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// filterPasses collapses duplicate entries, keeping each pass's first
// (earliest) position. The traversal emits producers before consumers,
// so the surviving order is topological.
func filterPasses(order []int) []int {
	seen := make(map[int]struct{}, len(order))
	out := order[:0]
	for _, p := range order {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// validatePasses checks the invariants the later stages rely on: every
// resource read in the plan has a producer, producers precede
// consumers, and every scheduled pass has an implementation.
func (g *RenderGraph) validatePasses() error {
	position := make(map[int]int, len(g.passStack))
	for pos, passIndex := range g.passStack {
		position[passIndex] = pos
	}

	for pos, passIndex := range g.passStack {
		pass := g.passes[passIndex]
		if pass.impl == nil {
			return fmt.Errorf("%w: pass %q", ErrMissingImplementation, pass.name)
		}
		for _, resIndex := range pass.inputResources() {
			res := g.resources[resIndex].base()
			if len(res.writtenInPasses) == 0 {
				if res.name == g.backbufferSource {
					continue
				}
				return fmt.Errorf("%w: %q read by pass %q",
					ErrUnproducedResource, res.name, pass.name)
			}
			for writer := range res.writtenInPasses {
				wpos, ok := position[writer]
				if !ok {
					// A writer outside the plan cannot order against
					// this reader; the filter step dropped it because
					// nothing on the backbuffer path needs it.
					continue
				}
				if wpos >= pos {
					return fmt.Errorf("%w: %q written by %q after being read by %q",
						ErrCycle, res.name, g.passes[writer].name, pass.name)
				}
			}
		}
	}
	return nil
}
