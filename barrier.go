package granite

import (
	"github.com/KonajuGames/granite/driver"
)

// addBarrier merges a barrier into list, combining access and stage
// masks when the resource already has an entry with the same layout
// and history flag.
func addBarrier(list []barrier, b barrier) []barrier {
	for i := range list {
		if list[i].resourceIndex == b.resourceIndex && list[i].history == b.history {
			if list[i].layout != b.layout {
				Logger().Warn("granite: conflicting layouts for resource in one pass",
					"resource", b.resourceIndex,
					"have", list[i].layout, "want", b.layout)
				continue
			}
			list[i].access |= b.access
			list[i].stages |= b.stages
			return list
		}
	}
	return append(list, b)
}

// buildBarriers infers the per-logical-pass invalidate and flush sets
// from the declared edges. Barriers here reference logical resource
// indices; buildPhysicalBarriers folds them onto physical slots.
func (g *RenderGraph) buildBarriers() {
	g.passBarriers = make([]barriers, len(g.passStack))

	for i, passIndex := range g.passStack {
		pass := g.passes[passIndex]
		bar := &g.passBarriers[i]

		invalidate := func(res int, layout driver.Layout, access driver.Access, stages driver.Stage, history bool) {
			bar.invalidate = addBarrier(bar.invalidate, barrier{
				resourceIndex: res, layout: layout, access: access, stages: stages, history: history,
			})
		}
		flush := func(res int, layout driver.Layout, access driver.Access, stages driver.Stage) {
			bar.flush = addBarrier(bar.flush, barrier{
				resourceIndex: res, layout: layout, access: access, stages: stages,
			})
		}

		for _, res := range pass.colorInputs {
			if res != Unused {
				invalidate(res, driver.LayoutColorAttachmentOptimal,
					driver.AccessColorAttachmentRead|driver.AccessColorAttachmentWrite,
					driver.StageColorAttachmentOutput, false)
			}
		}
		for _, res := range pass.colorScaleInputs {
			if res != Unused {
				invalidate(res, driver.LayoutShaderReadOnlyOptimal,
					driver.AccessShaderRead, driver.StageFragmentShader, false)
			}
		}
		for _, res := range pass.attachmentInputs {
			invalidate(res, driver.LayoutShaderReadOnlyOptimal,
				driver.AccessInputAttachmentRead, driver.StageFragmentShader, false)
		}
		for _, res := range pass.textureInputs {
			invalidate(res, driver.LayoutShaderReadOnlyOptimal,
				driver.AccessShaderRead, pass.stages, false)
		}
		for _, res := range pass.historyInputs {
			invalidate(res, driver.LayoutShaderReadOnlyOptimal,
				driver.AccessShaderRead, pass.stages, true)
		}
		for _, res := range pass.storageTextureInputs {
			if res != Unused {
				invalidate(res, driver.LayoutGeneral,
					driver.AccessShaderRead, pass.stages, false)
			}
		}
		for _, res := range pass.uniformInputs {
			invalidate(res, driver.LayoutUndefined,
				driver.AccessUniformRead, pass.stages, false)
		}
		for _, res := range pass.storageReadInputs {
			invalidate(res, driver.LayoutUndefined,
				driver.AccessShaderRead, pass.stages, false)
		}
		for _, res := range pass.storageInputs {
			if res != Unused {
				invalidate(res, driver.LayoutUndefined,
					driver.AccessShaderRead, pass.stages, false)
			}
		}
		if pass.depthStencilInput != Unused {
			invalidate(pass.depthStencilInput, driver.LayoutDepthStencilReadOnlyOptimal,
				driver.AccessDepthStencilAttachmentRead,
				driver.StageEarlyFragmentTests|driver.StageLateFragmentTests, false)
		}

		for _, res := range pass.colorOutputs {
			flush(res, driver.LayoutColorAttachmentOptimal,
				driver.AccessColorAttachmentWrite, driver.StageColorAttachmentOutput)
		}
		for i, res := range pass.storageTextureOutputs {
			if res == Unused {
				continue
			}
			// A plain storage write still needs the image in GENERAL
			// before the pass runs; a twinned output already gets the
			// transition through its input's invalidate.
			if pass.storageTextureInputs[i] == Unused {
				invalidate(res, driver.LayoutGeneral,
					driver.AccessShaderWrite, pass.stages, false)
			}
			flush(res, driver.LayoutGeneral,
				driver.AccessShaderWrite, pass.stages)
		}
		for _, res := range pass.storageOutputs {
			flush(res, driver.LayoutUndefined,
				driver.AccessShaderWrite, pass.stages)
		}
		if pass.depthStencilOutput != Unused {
			flush(pass.depthStencilOutput, driver.LayoutDepthStencilAttachmentOptimal,
				driver.AccessDepthStencilAttachmentWrite|driver.AccessDepthStencilAttachmentRead,
				driver.StageEarlyFragmentTests|driver.StageLateFragmentTests)
		}
	}
}

// physicalResourceState tracks one physical slot's layout and pending
// flushed writes while folding logical barriers onto physical passes.
type physicalResourceState struct {
	layout      driver.Layout
	flushAccess driver.Access
	flushStages driver.Stage
	seenWrite   bool

	// flushedInPass is the physical pass of the most recent flush, so
	// intra-pass consumers rely on subpass dependencies instead of
	// explicit barriers.
	flushedInPass int
}

// buildPhysicalBarriers folds the logical invalidate/flush sets onto
// physical passes, dropping barriers covered by subpass dependencies
// and routing first-use transitions of persistent and history
// resources to the initial barrier lists.
func (g *RenderGraph) buildPhysicalBarriers() {
	states := make([]physicalResourceState, len(g.physicalDimensions))
	for i := range states {
		states[i].flushedInPass = Unused
	}

	g.initialBarriers = nil
	g.initialTopOfPipeBarriers = nil

	// Plan position of each pass's barrier record.
	barrierIndex := make(map[int]int, len(g.passStack))
	for pos, passIndex := range g.passStack {
		barrierIndex[passIndex] = pos
	}

	for ppIndex := range g.physicalPasses {
		pp := &g.physicalPasses[ppIndex]

		for _, passIndex := range pp.passes {
			bar := &g.passBarriers[barrierIndex[passIndex]]

			for _, b := range bar.invalidate {
				phys := g.resources[b.resourceIndex].base().physicalIndex
				st := &states[phys]

				if b.history {
					// History reads target the previous frame's image;
					// its transition is queued with the frame's
					// initial barriers.
					hb := b
					hb.resourceIndex = phys
					g.initialBarriers = addBarrier(g.initialBarriers, hb)
					g.initialTopOfPipeBarriers = addBarrier(g.initialTopOfPipeBarriers, hb)
					continue
				}

				if !st.seenWrite && g.physicalDimensions[phys].Persistent {
					// Touched before any write this frame: persistent
					// contents carried over from the previous frame get
					// their transition with the frame's initial
					// barriers.
					pb := b
					pb.resourceIndex = phys
					g.initialBarriers = addBarrier(g.initialBarriers, pb)
					g.initialTopOfPipeBarriers = addBarrier(g.initialTopOfPipeBarriers, pb)
					st.layout = b.layout
					continue
				}

				if st.flushedInPass == ppIndex {
					// Producer lives in the same physical pass; the
					// subpass dependency already orders the access.
					continue
				}

				if st.layout != b.layout || st.flushAccess != 0 {
					nb := b
					nb.resourceIndex = phys
					pp.invalidate = addBarrier(pp.invalidate, nb)
					st.layout = b.layout
					st.flushAccess = 0
					st.flushStages = 0
				}
			}

			for _, b := range bar.flush {
				phys := g.resources[b.resourceIndex].base().physicalIndex
				st := &states[phys]
				st.seenWrite = true
				st.flushAccess = b.access
				st.flushStages = b.stages
				st.flushedInPass = ppIndex
				layout := b.layout
				if phys == g.swapchainPhysicalIndex && g.lastWriteOfSwapchain(ppIndex) {
					layout = driver.LayoutPresentSrc
				}
				st.layout = layout
				fb := b
				fb.resourceIndex = phys
				fb.layout = layout
				pp.flush = addBarrier(pp.flush, fb)
			}
		}
	}
}

// lastWriteOfSwapchain reports whether no later physical pass writes
// the swapchain slot, making ppIndex's flush the present transition.
func (g *RenderGraph) lastWriteOfSwapchain(ppIndex int) bool {
	for i := ppIndex + 1; i < len(g.physicalPasses); i++ {
		for _, passIndex := range g.physicalPasses[i].passes {
			pass := g.passes[passIndex]
			for _, res := range pass.colorOutputs {
				if g.resources[res].base().physicalIndex == g.swapchainPhysicalIndex {
					return false
				}
			}
			for _, res := range pass.storageTextureOutputs {
				if res != Unused && g.resources[res].base().physicalIndex == g.swapchainPhysicalIndex {
					return false
				}
			}
		}
	}
	return true
}
