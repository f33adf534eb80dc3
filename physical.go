package granite

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// resolveTextureDimensions computes the physical dimensions of an
// image resource by applying its size-class rule, following
// input-relative references transitively. visiting guards against
// cycles in size relations.
func (g *RenderGraph) resolveTextureDimensions(res *TextureResource, visiting map[int]bool) (ResourceDimensions, error) {
	if visiting[res.Index()] {
		return ResourceDimensions{}, fmt.Errorf("%w: size relation cycle through %q",
			ErrDimensionUnresolvable, res.Name())
	}
	visiting[res.Index()] = true
	defer delete(visiting, res.Index())

	info := res.AttachmentInfo()
	sizeX, sizeY := info.SizeX, info.SizeY
	if sizeX == 0 {
		sizeX = 1
	}
	if sizeY == 0 {
		sizeY = 1
	}

	dim := ResourceDimensions{
		Format:     info.Format,
		Depth:      1,
		Layers:     1,
		Levels:     1,
		Persistent: info.Persistent,
		Storage:    res.Storage(),
	}

	switch info.SizeClass {
	case SizeAbsolute:
		dim.Width = uint32(sizeX + 0.5)
		dim.Height = uint32(sizeY + 0.5)
	case SizeSwapchainRelative:
		dim.Width = uint32(sizeX * float32(g.swapchainDimensions.Width))
		dim.Height = uint32(sizeY * float32(g.swapchainDimensions.Height))
	case SizeInputRelative:
		refIndex, ok := g.resourceToIndex[info.SizeRelativeName]
		if !ok {
			return ResourceDimensions{}, fmt.Errorf("%w: %q sized relative to unknown resource %q",
				ErrDimensionUnresolvable, res.Name(), info.SizeRelativeName)
		}
		ref, ok := g.resources[refIndex].(*TextureResource)
		if !ok {
			return ResourceDimensions{}, fmt.Errorf("%w: %q sized relative to buffer %q",
				ErrDimensionUnresolvable, res.Name(), info.SizeRelativeName)
		}
		refDim, err := g.resolveTextureDimensions(ref, visiting)
		if err != nil {
			return ResourceDimensions{}, err
		}
		dim.Width = uint32(sizeX * float32(refDim.Width))
		dim.Height = uint32(sizeY * float32(refDim.Height))
	}

	// The backbuffer inherits the swapchain format when none was
	// declared.
	if dim.Format == gputypes.TextureFormatUndefined && res.Name() == g.backbufferSource {
		dim.Format = g.swapchainDimensions.Format
	}
	return dim, nil
}

// resolveBufferDimensions carries a buffer's declared info straight
// through.
func resolveBufferDimensions(res *BufferResource) ResourceDimensions {
	info := res.BufferInfo()
	return ResourceDimensions{
		BufferInfo: info,
		Persistent: info.Persistent,
	}
}

// lifetime is a resource's live interval in plan positions:
// first touch to last touch, inclusive.
type lifetime struct {
	first int
	last  int
}

func (l lifetime) overlaps(other lifetime) bool {
	return l.first <= other.last && other.first <= l.last
}

// twinGroups unions logical resources forced onto one physical slot by
// input-twin declarations, including a pass's depth input/output pair.
// Returns a representative index per resource.
func (g *RenderGraph) twinGroups() []int {
	rep := make([]int, len(g.resources))
	for i := range rep {
		rep[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if rep[i] != i {
			rep[i] = find(rep[i])
		}
		return rep[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			rep[rb] = ra
		}
	}

	for _, passIndex := range g.passStack {
		pass := g.passes[passIndex]
		// Scaled color inputs are sampled rather than aliased; only the
		// plain color input twin shares the output's memory.
		for i, out := range pass.colorOutputs {
			if in := pass.colorInputs[i]; in != Unused {
				union(out, in)
			}
		}
		for i, out := range pass.storageTextureOutputs {
			if out == Unused {
				continue
			}
			if in := pass.storageTextureInputs[i]; in != Unused {
				union(out, in)
			}
		}
		for i, out := range pass.storageOutputs {
			if in := pass.storageInputs[i]; in != Unused {
				union(out, in)
			}
		}
		if pass.depthStencilInput != Unused && pass.depthStencilOutput != Unused {
			union(pass.depthStencilOutput, pass.depthStencilInput)
		}
	}

	for i := range rep {
		rep[i] = find(i)
	}
	return rep
}

// buildPhysicalResources resolves per-resource physical dimensions and
// assigns physical indices, aliasing compatible logical resources with
// disjoint lifetimes onto shared slots.
func (g *RenderGraph) buildPhysicalResources() error {
	position := make(map[int]int, len(g.passStack))
	for pos, passIndex := range g.passStack {
		position[passIndex] = pos
	}

	// Live intervals and usage flags for resources touched by the plan.
	lifetimes := make(map[int]lifetime)
	historyRes := make(map[int]bool)
	for _, passIndex := range g.passStack {
		pass := g.passes[passIndex]
		pos := position[passIndex]
		touch := func(resIndex int) {
			lt, ok := lifetimes[resIndex]
			if !ok {
				lifetimes[resIndex] = lifetime{first: pos, last: pos}
				return
			}
			if pos < lt.first {
				lt.first = pos
			}
			if pos > lt.last {
				lt.last = pos
			}
			lifetimes[resIndex] = lt
		}
		for _, resIndex := range pass.inputResources() {
			touch(resIndex)
		}
		for _, list := range [][]int{pass.colorOutputs, pass.storageTextureOutputs, pass.storageOutputs} {
			for _, resIndex := range list {
				if resIndex != Unused {
					touch(resIndex)
				}
			}
		}
		if pass.depthStencilOutput != Unused {
			touch(pass.depthStencilOutput)
		}
		for _, resIndex := range pass.historyInputs {
			touch(resIndex)
			historyRes[resIndex] = true
		}
	}

	rep := g.twinGroups()

	g.physicalDimensions = g.physicalDimensions[:0]
	g.physicalImageHasHistory = g.physicalImageHasHistory[:0]

	// slotLifetimes tracks the union of intervals living in each slot;
	// slotAliasable marks slots closed to aliasing (history, storage,
	// persistent, swapchain).
	var slotLifetimes [][]lifetime
	var slotAliasable []bool

	allocate := func(dim ResourceDimensions, hasHistory bool) int {
		g.physicalDimensions = append(g.physicalDimensions, dim)
		g.physicalImageHasHistory = append(g.physicalImageHasHistory, hasHistory)
		slotLifetimes = append(slotLifetimes, nil)
		slotAliasable = append(slotAliasable, !hasHistory && !dim.Persistent && !dim.Storage)
		return len(g.physicalDimensions) - 1
	}

	// The backbuffer's whole twin group binds to the reserved
	// swapchain slot.
	bbRep := Unused
	if bbIndex, ok := g.resourceToIndex[g.backbufferSource]; ok {
		bbRep = rep[bbIndex]
	}

	// Iterate in creation order for deterministic assignment. Twin
	// representatives carry the smallest index of their group, so a
	// group's slot exists by the time its other members are reached.
	for resIndex, res := range g.resources {
		lt, live := lifetimes[resIndex]
		if !live {
			continue
		}
		base := res.base()
		hasHistory := historyRes[resIndex]

		if repIndex := rep[resIndex]; repIndex != resIndex {
			slot := g.resources[repIndex].base().physicalIndex
			base.physicalIndex = slot
			slotLifetimes[slot] = append(slotLifetimes[slot], lt)
			if hasHistory {
				g.physicalImageHasHistory[slot] = true
				slotAliasable[slot] = false
			}
			continue
		}

		var dim ResourceDimensions
		switch r := res.(type) {
		case *TextureResource:
			var err error
			dim, err = g.resolveTextureDimensions(r, make(map[int]bool))
			if err != nil {
				return err
			}
		case *BufferResource:
			dim = resolveBufferDimensions(r)
		}

		// The swapchain image always owns a reserved slot, shared by
		// everything twinned onto the backbuffer.
		if rep[resIndex] == bbRep && bbRep != Unused {
			if bbIndex := g.resourceToIndex[g.backbufferSource]; resIndex != bbIndex {
				// Resolve the slot's shape from the backbuffer itself
				// so the swapchain format substitution applies.
				bb := g.resources[bbIndex].(*TextureResource)
				bbDim, err := g.resolveTextureDimensions(bb, make(map[int]bool))
				if err != nil {
					return err
				}
				dim = bbDim
			}
			slot := allocate(dim, false)
			slotAliasable[slot] = false
			g.swapchainPhysicalIndex = slot
			base.physicalIndex = slot
			slotLifetimes[slot] = append(slotLifetimes[slot], lt)
			continue
		}

		assigned := Unused
		if !hasHistory && !dim.Persistent && !dim.Storage {
			for slot := range g.physicalDimensions {
				if !slotAliasable[slot] || !g.physicalDimensions[slot].Equal(dim) {
					continue
				}
				free := true
				for _, other := range slotLifetimes[slot] {
					if lt.overlaps(other) {
						free = false
						break
					}
				}
				if free {
					assigned = slot
					break
				}
			}
		}
		if assigned == Unused {
			assigned = allocate(dim, hasHistory)
		}
		base.physicalIndex = assigned
		slotLifetimes[assigned] = append(slotLifetimes[assigned], lt)
		if hasHistory {
			g.physicalImageHasHistory[assigned] = true
			slotAliasable[assigned] = false
		}
	}
	return nil
}

// buildTransients marks physical images whose contents never leave the
// physical pass that writes them, making them candidates for lazy
// on-chip backing. Buffers, storage images, persistent and
// history-enabled resources never qualify.
func (g *RenderGraph) buildTransients() {
	for i := range g.physicalDimensions {
		dim := &g.physicalDimensions[i]
		dim.Transient = false
		if dim.isBuffer() || dim.Storage || dim.Persistent {
			continue
		}
		if i == g.swapchainPhysicalIndex {
			continue
		}
		if g.physicalImageHasHistory[i] {
			continue
		}

		transient := true
		for resIndex, res := range g.resources {
			base := res.base()
			if base.physicalIndex != i {
				continue
			}
			physPass := Unused
			for _, passIndex := range g.passStack {
				pass := g.passes[passIndex]
				if !pass.writesResource(resIndex) && !pass.readsResource(resIndex) {
					continue
				}
				// Sampled, scaled and history reads leave the render
				// pass; they disqualify transient backing.
				if containsIndex(pass.textureInputs, resIndex) ||
					containsIndex(pass.colorScaleInputs, resIndex) ||
					containsIndex(pass.historyInputs, resIndex) {
					transient = false
					break
				}
				if physPass == Unused {
					physPass = pass.physicalPass
				} else if physPass != pass.physicalPass {
					transient = false
					break
				}
			}
			if !transient {
				break
			}
		}
		dim.Transient = transient
	}
}

func containsIndex(list []int, idx int) bool {
	for _, v := range list {
		if v == idx {
			return true
		}
	}
	return false
}

// writesResource reports whether the pass has any write edge to the
// resource.
func (p *RenderPass) writesResource(resIndex int) bool {
	if containsIndex(p.colorOutputs, resIndex) ||
		containsIndex(p.storageTextureOutputs, resIndex) ||
		containsIndex(p.storageOutputs, resIndex) {
		return true
	}
	return p.depthStencilOutput == resIndex
}

// readsResource reports whether the pass has any read edge to the
// resource, history included.
func (p *RenderPass) readsResource(resIndex int) bool {
	for _, resIdx := range p.inputResources() {
		if resIdx == resIndex {
			return true
		}
	}
	return containsIndex(p.historyInputs, resIndex)
}
