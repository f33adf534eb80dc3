package granite

import (
	"github.com/KonajuGames/granite/driver"
)

// buildPhysicalPasses greedily groups consecutive raster passes into
// physical passes (one render pass, multiple subpasses) when their
// attachments and ordering allow on-chip reuse. Compute-only passes
// always form single-pass groups.
func (g *RenderGraph) buildPhysicalPasses() {
	g.physicalPasses = g.physicalPasses[:0]

	for i := 0; i < len(g.passStack); {
		group := []int{g.passStack[i]}
		j := i + 1
		if g.passes[g.passStack[i]].isRaster() {
			for ; j < len(g.passStack); j++ {
				candidate := g.passStack[j]
				if !g.canMergeIntoGroup(group, candidate) {
					break
				}
				group = append(group, candidate)
			}
		}

		index := len(g.physicalPasses)
		for _, passIndex := range group {
			g.passes[passIndex].physicalPass = index
		}
		g.physicalPasses = append(g.physicalPasses, physicalPass{
			passes:                         group,
			physicalDepthStencilAttachment: Unused,
		})
		i = j
	}
}

// canMergeIntoGroup reports whether candidate can join the current
// group as another subpass. When merging would violate correctness the
// planner falls back to a separate physical pass; violations are only
// logged, never surfaced as errors.
func (g *RenderGraph) canMergeIntoGroup(group []int, candidate int) bool {
	cand := g.passes[candidate]
	if !cand.isRaster() {
		return false
	}

	log := Logger()

	// Physical indices written by the group as attachments, storage
	// images or storage buffers, and the physical slot each color
	// attachment occupies.
	written := make(map[int]bool)
	storageTouched := make(map[int]bool)
	colorSlot := make(map[int]int)
	groupDS := Unused
	for _, passIndex := range group {
		pass := g.passes[passIndex]
		for slot, resIndex := range pass.colorOutputs {
			phys := g.resources[resIndex].base().physicalIndex
			written[phys] = true
			if prev, ok := colorSlot[phys]; ok && prev != slot {
				return false
			}
			colorSlot[phys] = slot
		}
		if pass.depthStencilOutput != Unused {
			phys := g.resources[pass.depthStencilOutput].base().physicalIndex
			written[phys] = true
			groupDS = phys
		}
		if pass.depthStencilInput != Unused && groupDS == Unused {
			groupDS = g.resources[pass.depthStencilInput].base().physicalIndex
		}
		for _, list := range [][]int{pass.storageTextureInputs, pass.storageTextureOutputs, pass.storageInputs, pass.storageOutputs, pass.storageReadInputs} {
			for _, resIndex := range list {
				if resIndex != Unused {
					storageTouched[g.resources[resIndex].base().physicalIndex] = true
				}
			}
		}
	}

	// Attachment extents must agree across the whole framebuffer.
	groupDim, ok := g.groupExtent(group)
	if !ok {
		return false
	}
	candDim, ok := g.groupExtent([]int{candidate})
	if ok && (candDim.Width != groupDim.Width || candDim.Height != groupDim.Height) {
		log.Debug("granite: merge rejected, extent mismatch",
			"pass", cand.name, "group", g.passes[group[0]].name)
		return false
	}

	// Sampled reads of a group-written resource need store + sample;
	// only attachment-input and color-input reads stay on-chip.
	for _, list := range [][]int{cand.textureInputs, cand.colorScaleInputs} {
		for _, resIndex := range list {
			if resIndex == Unused {
				continue
			}
			if written[g.resources[resIndex].base().physicalIndex] {
				log.Debug("granite: merge rejected, sampled read of group output",
					"pass", cand.name, "resource", g.resources[resIndex].base().name)
				return false
			}
		}
	}

	// Storage access on a resource the group touches crosses the group
	// boundary with an explicit barrier.
	for _, list := range [][]int{cand.storageTextureInputs, cand.storageTextureOutputs, cand.storageInputs, cand.storageOutputs, cand.storageReadInputs} {
		for _, resIndex := range list {
			if resIndex == Unused {
				continue
			}
			phys := g.resources[resIndex].base().physicalIndex
			if written[phys] || storageTouched[phys] {
				return false
			}
		}
	}

	// A shared depth attachment must be the same physical resource.
	candDS := Unused
	if cand.depthStencilOutput != Unused {
		candDS = g.resources[cand.depthStencilOutput].base().physicalIndex
	} else if cand.depthStencilInput != Unused {
		candDS = g.resources[cand.depthStencilInput].base().physicalIndex
	}
	if candDS != Unused && groupDS != Unused && candDS != groupDS {
		log.Debug("granite: merge rejected, depth attachment mismatch",
			"pass", cand.name)
		return false
	}

	// Color attachments shared with the group must keep their slot.
	for slot, resIndex := range cand.colorOutputs {
		phys := g.resources[resIndex].base().physicalIndex
		if prev, ok := colorSlot[phys]; ok && prev != slot {
			log.Debug("granite: merge rejected, attachment slot mismatch",
				"pass", cand.name, "resource", g.resources[resIndex].base().name)
			return false
		}
	}
	return true
}

// groupExtent returns the framebuffer extent shared by a group's
// attachments. ok is false when the group has attachments of differing
// extents (which also rejects merging).
func (g *RenderGraph) groupExtent(group []int) (ResourceDimensions, bool) {
	var dim ResourceDimensions
	found := false
	consider := func(resIndex int) bool {
		phys := g.resources[resIndex].base().physicalIndex
		d := g.physicalDimensions[phys]
		if !found {
			dim = d
			found = true
			return true
		}
		return d.Width == dim.Width && d.Height == dim.Height
	}
	for _, passIndex := range group {
		pass := g.passes[passIndex]
		for _, resIndex := range pass.colorOutputs {
			if !consider(resIndex) {
				return dim, false
			}
		}
		if pass.depthStencilOutput != Unused && !consider(pass.depthStencilOutput) {
			return dim, false
		}
		if pass.depthStencilInput != Unused && !consider(pass.depthStencilInput) {
			return dim, false
		}
	}
	return dim, found
}

// buildRenderPassInfo fills in each raster physical pass's render-pass
// descriptor: attachment list, per-attachment load/store ops, subpass
// layout, subpass dependencies, and the clear and scaled-clear
// requests resolved at execution time.
func (g *RenderGraph) buildRenderPassInfo() {
	position := make(map[int]int, len(g.passStack))
	for pos, passIndex := range g.passStack {
		position[passIndex] = pos
	}

	for ppIndex := range g.physicalPasses {
		pp := &g.physicalPasses[ppIndex]
		first := g.passes[pp.passes[0]]
		if !first.isRaster() {
			continue
		}

		groupStart := position[pp.passes[0]]
		groupEnd := position[pp.passes[len(pp.passes)-1]]

		// Assemble the attachment list in first-use order. Attachment
		// inputs join the framebuffer even when produced outside the
		// group; they load from memory in that case.
		slotOf := make(map[int]int)
		addColor := func(phys int) int {
			if slot, ok := slotOf[phys]; ok {
				return slot
			}
			slot := len(pp.physicalColorAttachments)
			slotOf[phys] = slot
			pp.physicalColorAttachments = append(pp.physicalColorAttachments, phys)
			return slot
		}
		for _, passIndex := range pp.passes {
			pass := g.passes[passIndex]
			for _, resIndex := range pass.colorOutputs {
				addColor(g.resources[resIndex].base().physicalIndex)
			}
			for _, resIndex := range pass.attachmentInputs {
				addColor(g.resources[resIndex].base().physicalIndex)
			}
			if pass.depthStencilOutput != Unused {
				pp.physicalDepthStencilAttachment = g.resources[pass.depthStencilOutput].base().physicalIndex
			} else if pass.depthStencilInput != Unused && pp.physicalDepthStencilAttachment == Unused {
				pp.physicalDepthStencilAttachment = g.resources[pass.depthStencilInput].base().physicalIndex
			}
		}

		// Per-attachment ops. Attachments the group never writes are
		// pure input attachments; they stay in shader-read layout and
		// must preserve their contents.
		writtenByGroup := make(map[int]bool)
		for _, passIndex := range pp.passes {
			pass := g.passes[passIndex]
			for _, resIndex := range pass.colorOutputs {
				writtenByGroup[g.resources[resIndex].base().physicalIndex] = true
			}
		}

		desc := driver.RenderPassDesc{}
		for _, phys := range pp.physicalColorAttachments {
			att := driver.AttachmentDesc{
				Format:      g.physicalDimensions[phys].Format,
				Load:        driver.LoadOpDontCare,
				Store:       driver.StoreOpDontCare,
				FinalLayout: driver.LayoutColorAttachmentOptimal,
			}
			if g.physicalReadBefore(phys, groupStart) {
				att.Load = driver.LoadOpLoad
				att.InitialLayout = driver.LayoutColorAttachmentOptimal
			}
			if g.physicalReadAfter(phys, groupEnd) || phys == g.swapchainPhysicalIndex ||
				g.physicalDimensions[phys].Persistent || g.physicalImageHasHistory[phys] {
				att.Store = driver.StoreOpStore
			}
			if phys == g.swapchainPhysicalIndex && !g.physicalReadAfter(phys, groupEnd) {
				att.FinalLayout = driver.LayoutPresentSrc
			}
			if !writtenByGroup[phys] {
				att.Load = driver.LoadOpLoad
				att.Store = driver.StoreOpStore
				att.InitialLayout = driver.LayoutShaderReadOnlyOptimal
				att.FinalLayout = driver.LayoutShaderReadOnlyOptimal
			}
			desc.ColorAttachments = append(desc.ColorAttachments, att)
		}

		// Clear requests override load ops for first-write attachments.
		for _, passIndex := range pp.passes {
			pass := g.passes[passIndex]
			provider, _ := pass.impl.(ClearColorProvider)
			for slot, resIndex := range pass.colorOutputs {
				phys := g.resources[resIndex].base().physicalIndex
				attSlot := slotOf[phys]
				if desc.ColorAttachments[attSlot].Load == driver.LoadOpLoad {
					continue
				}
				if provider == nil {
					continue
				}
				if _, ok := provider.ClearColor(slot); !ok {
					continue
				}
				desc.ColorAttachments[attSlot].Load = driver.LoadOpClear
				pp.colorClearRequests = append(pp.colorClearRequests, colorClearRequest{
					impl:       pass.impl,
					index:      slot,
					attachment: attSlot,
				})
			}
		}

		if dsPhys := pp.physicalDepthStencilAttachment; dsPhys != Unused {
			dsWritten := false
			for _, passIndex := range pp.passes {
				if g.passes[passIndex].depthStencilOutput != Unused {
					dsWritten = true
				}
			}
			dsLayout := driver.LayoutDepthStencilAttachmentOptimal
			if !dsWritten {
				dsLayout = driver.LayoutDepthStencilReadOnlyOptimal
			}
			ds := driver.AttachmentDesc{
				Format:      g.physicalDimensions[dsPhys].Format,
				Load:        driver.LoadOpDontCare,
				Store:       driver.StoreOpDontCare,
				FinalLayout: dsLayout,
			}
			if g.physicalReadBefore(dsPhys, groupStart) {
				ds.Load = driver.LoadOpLoad
				ds.InitialLayout = dsLayout
			}
			if g.physicalReadAfter(dsPhys, groupEnd) || g.physicalDimensions[dsPhys].Persistent {
				ds.Store = driver.StoreOpStore
			}
			for _, passIndex := range pp.passes {
				pass := g.passes[passIndex]
				if pass.depthStencilOutput == Unused || ds.Load == driver.LoadOpLoad {
					continue
				}
				if provider, ok := pass.impl.(ClearDepthStencilProvider); ok {
					if _, _, wantClear := provider.ClearDepthStencil(); wantClear {
						ds.Load = driver.LoadOpClear
						pp.depthClearRequest = &depthClearRequest{impl: pass.impl}
					}
				}
			}
			desc.DepthStencil = &ds
		}

		// Subpasses and scaled-clear queues.
		pp.scaledClearRequests = make([][]scaledClearRequest, len(pp.passes))
		for sub, passIndex := range pp.passes {
			pass := g.passes[passIndex]
			sp := driver.SubpassDesc{DepthStencil: driver.SubpassNone}
			for _, resIndex := range pass.colorOutputs {
				sp.Colors = append(sp.Colors, slotOf[g.resources[resIndex].base().physicalIndex])
			}
			for _, resIndex := range pass.attachmentInputs {
				sp.Inputs = append(sp.Inputs, slotOf[g.resources[resIndex].base().physicalIndex])
			}
			if pass.depthStencilOutput != Unused {
				sp.DepthStencil = len(pp.physicalColorAttachments)
			} else if pass.depthStencilInput != Unused {
				sp.DepthStencil = len(pp.physicalColorAttachments)
				sp.DepthStencilReadOnly = true
			}
			desc.Subpasses = append(desc.Subpasses, sp)

			for slot, resIndex := range pass.colorScaleInputs {
				if resIndex == Unused {
					continue
				}
				pp.scaledClearRequests[sub] = append(pp.scaledClearRequests[sub], scaledClearRequest{
					target:           slot,
					physicalResource: g.resources[resIndex].base().physicalIndex,
				})
			}
		}

		desc.Dependencies = g.subpassDependencies(pp)
		pp.renderPassDesc = desc
	}
}

// subpassDependencies derives the dependencies between merged
// subpasses; within a physical pass these replace pipeline barriers.
func (g *RenderGraph) subpassDependencies(pp *physicalPass) []driver.SubpassDependency {
	var deps []driver.SubpassDependency

	// lastColorWriter and lastDepthWriter track the most recent subpass
	// writing each physical attachment.
	lastColorWriter := make(map[int]int)
	lastDepthWriter := Unused

	for sub, passIndex := range pp.passes {
		pass := g.passes[passIndex]

		for _, resIndex := range pass.attachmentInputs {
			phys := g.resources[resIndex].base().physicalIndex
			if src, ok := lastColorWriter[phys]; ok && src != sub {
				deps = append(deps, driver.SubpassDependency{
					Src:       src,
					Dst:       sub,
					SrcStages: driver.StageColorAttachmentOutput,
					DstStages: driver.StageFragmentShader,
					SrcAccess: driver.AccessColorAttachmentWrite,
					DstAccess: driver.AccessInputAttachmentRead,
					ByRegion:  true,
				})
			}
		}

		// A color input twin read-modify-writes an attachment written
		// by an earlier subpass.
		for _, resIndex := range pass.colorInputs {
			if resIndex == Unused {
				continue
			}
			phys := g.resources[resIndex].base().physicalIndex
			if src, ok := lastColorWriter[phys]; ok && src != sub {
				deps = append(deps, driver.SubpassDependency{
					Src:       src,
					Dst:       sub,
					SrcStages: driver.StageColorAttachmentOutput,
					DstStages: driver.StageColorAttachmentOutput,
					SrcAccess: driver.AccessColorAttachmentWrite,
					DstAccess: driver.AccessColorAttachmentRead | driver.AccessColorAttachmentWrite,
					ByRegion:  true,
				})
			}
		}

		if pass.depthStencilInput != Unused && lastDepthWriter != Unused && lastDepthWriter != sub {
			deps = append(deps, driver.SubpassDependency{
				Src:       lastDepthWriter,
				Dst:       sub,
				SrcStages: driver.StageEarlyFragmentTests | driver.StageLateFragmentTests,
				DstStages: driver.StageEarlyFragmentTests | driver.StageLateFragmentTests,
				SrcAccess: driver.AccessDepthStencilAttachmentWrite,
				DstAccess: driver.AccessDepthStencilAttachmentRead,
				ByRegion:  true,
			})
		}

		for _, resIndex := range pass.colorOutputs {
			lastColorWriter[g.resources[resIndex].base().physicalIndex] = sub
		}
		if pass.depthStencilOutput != Unused {
			lastDepthWriter = sub
		}
	}
	return deps
}

// physicalReadBefore reports whether any logical resource in the slot
// is written by a pass positioned before start, with a read at or
// after start. Such attachments must preserve their contents on load.
func (g *RenderGraph) physicalReadBefore(phys, start int) bool {
	position := g.planPositions()
	for _, res := range g.resources {
		base := res.base()
		if base.physicalIndex != phys {
			continue
		}
		writtenBefore := false
		for writer := range base.writtenInPasses {
			if pos, ok := position[writer]; ok && pos < start {
				writtenBefore = true
				break
			}
		}
		if !writtenBefore {
			continue
		}
		for reader := range base.readInPasses {
			if pos, ok := position[reader]; ok && pos >= start {
				return true
			}
		}
	}
	return false
}

// physicalReadAfter reports whether any logical resource in the slot
// is read by a pass positioned after end.
func (g *RenderGraph) physicalReadAfter(phys, end int) bool {
	position := g.planPositions()
	for _, res := range g.resources {
		base := res.base()
		if base.physicalIndex != phys {
			continue
		}
		for reader := range base.readInPasses {
			if pos, ok := position[reader]; ok && pos > end {
				return true
			}
		}
	}
	return false
}

// planPositions maps logical pass index to plan position.
func (g *RenderGraph) planPositions() map[int]int {
	position := make(map[int]int, len(g.passStack))
	for pos, passIndex := range g.passStack {
		position[passIndex] = pos
	}
	return position
}
