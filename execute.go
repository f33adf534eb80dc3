package granite

import (
	"fmt"

	"github.com/KonajuGames/granite/driver"
)

// EnqueueRenderPasses records one frame: for every physical pass in
// plan order it emits the queued barriers, begins the render pass,
// invokes each logical pass's implementation, and ends the pass. After
// the last pass, history images are swapped so the next frame observes
// this frame's output as history.
func (g *RenderGraph) EnqueueRenderPasses(device driver.Device) error {
	if !g.baked {
		return ErrNotBaked
	}
	if g.physicalAttachments == nil {
		return fmt.Errorf("%w: attachments not set up", ErrNotBaked)
	}

	cmd, err := device.RequestCommandBuffer()
	if err != nil {
		return fmt.Errorf("request command buffer: %w", err)
	}

	g.ensureTrackedState()
	g.enqueueInitialBarriers(cmd)

	for ppIndex := range g.physicalPasses {
		pp := &g.physicalPasses[ppIndex]
		g.emitInvalidates(cmd, pp.invalidate)

		if g.passes[pp.passes[0]].isRaster() {
			g.enqueueRasterPass(cmd, pp)
		} else {
			for _, passIndex := range pp.passes {
				pass := g.passes[passIndex]
				pass.impl.BuildRenderPass(pass, cmd)
			}
		}

		for _, b := range pp.flush {
			g.trackedStages[b.resourceIndex] = b.stages
			g.trackedAccess[b.resourceIndex] = b.access
			if !g.physicalDimensions[b.resourceIndex].isBuffer() {
				g.trackedLayout[b.resourceIndex] = b.layout
			}
		}
	}

	g.swapHistoryImages()
	g.frameIndex++

	if err := device.Submit(cmd); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

// ensureTrackedState sizes the per-slot execution state on first use
// or after a rebake changed the physical pool.
func (g *RenderGraph) ensureTrackedState() {
	n := len(g.physicalDimensions)
	if len(g.trackedLayout) == n {
		return
	}
	g.trackedStages = make([]driver.Stage, n)
	g.trackedAccess = make([]driver.Access, n)
	g.trackedLayout = make([]driver.Layout, n)
	g.trackedHistoryLayout = make([]driver.Layout, n)
}

// enqueueInitialBarriers emits the cold-start top-of-pipe transitions
// on the first frame, and the carried-over first-use transitions of
// persistent and history resources on every later frame.
func (g *RenderGraph) enqueueInitialBarriers(cmd driver.CommandBuffer) {
	if !g.coldStartEmitted {
		g.emitInitial(cmd, g.initialTopOfPipeBarriers, true)
		g.coldStartEmitted = true
		return
	}
	g.emitInitial(cmd, g.initialBarriers, false)
}

func (g *RenderGraph) emitInitial(cmd driver.CommandBuffer, list []barrier, fromUndefined bool) {
	var images []driver.ImageBarrier
	for _, b := range list {
		view, old := g.barrierTarget(b)
		if fromUndefined {
			old = driver.LayoutUndefined
		}
		if view == nil || old == b.layout {
			continue
		}
		images = append(images, driver.ImageBarrier{
			MemoryBarrier: driver.MemoryBarrier{
				SrcStages: driver.StageTopOfPipe,
				DstStages: b.stages,
				SrcAccess: driver.AccessNone,
				DstAccess: b.access,
			},
			OldLayout: old,
			NewLayout: b.layout,
			View:      view,
		})
		g.setBarrierLayout(b, b.layout)
	}
	if len(images) > 0 {
		cmd.ImageBarriers(images)
	}
}

// barrierTarget resolves a barrier to the view it applies to and that
// view's currently tracked layout. History barriers target the
// previous frame's image, which does not exist on the first frame.
func (g *RenderGraph) barrierTarget(b barrier) (driver.ImageView, driver.Layout) {
	if b.history {
		img := g.physicalHistoryImageAttachments[b.resourceIndex]
		if img == nil {
			return nil, driver.LayoutUndefined
		}
		return img.View(), g.trackedHistoryLayout[b.resourceIndex]
	}
	return g.physicalAttachments[b.resourceIndex], g.trackedLayout[b.resourceIndex]
}

func (g *RenderGraph) setBarrierLayout(b barrier, layout driver.Layout) {
	if b.history {
		g.trackedHistoryLayout[b.resourceIndex] = layout
		return
	}
	g.trackedLayout[b.resourceIndex] = layout
}

// emitInvalidates makes prior writes visible to a physical pass's
// reads: image barriers carry the layout transition, buffer accesses
// become plain memory barriers. The source scope comes from the
// tracked state of the most recent flush.
func (g *RenderGraph) emitInvalidates(cmd driver.CommandBuffer, list []barrier) {
	var images []driver.ImageBarrier
	var memory []driver.MemoryBarrier

	for _, b := range list {
		srcStages := g.trackedStages[b.resourceIndex]
		srcAccess := g.trackedAccess[b.resourceIndex]
		if srcStages == driver.StageNone {
			srcStages = driver.StageTopOfPipe
		}

		if g.physicalDimensions[b.resourceIndex].isBuffer() {
			memory = append(memory, driver.MemoryBarrier{
				SrcStages: srcStages,
				DstStages: b.stages,
				SrcAccess: srcAccess,
				DstAccess: b.access,
			})
			continue
		}

		view, old := g.barrierTarget(b)
		if view == nil {
			continue
		}
		if old == b.layout && srcAccess == driver.AccessNone {
			continue
		}
		images = append(images, driver.ImageBarrier{
			MemoryBarrier: driver.MemoryBarrier{
				SrcStages: srcStages,
				DstStages: b.stages,
				SrcAccess: srcAccess,
				DstAccess: b.access,
			},
			OldLayout: old,
			NewLayout: b.layout,
			View:      view,
		})
		g.setBarrierLayout(b, b.layout)
		g.trackedAccess[b.resourceIndex] = driver.AccessNone
		g.trackedStages[b.resourceIndex] = driver.StageNone
	}

	if len(memory) > 0 {
		cmd.Barrier(memory)
	}
	if len(images) > 0 {
		cmd.ImageBarriers(images)
	}
}

// enqueueRasterPass begins the merged render pass, runs each subpass's
// scaled blits and implementation, and ends the pass.
func (g *RenderGraph) enqueueRasterPass(cmd driver.CommandBuffer, pp *physicalPass) {
	attachments := make([]driver.ImageView, 0, len(pp.physicalColorAttachments)+1)
	clears := make([]driver.ClearValue, 0, len(pp.physicalColorAttachments)+1)
	for _, phys := range pp.physicalColorAttachments {
		attachments = append(attachments, g.physicalAttachments[phys])
		clears = append(clears, driver.ClearValue{})
	}
	for _, req := range pp.colorClearRequests {
		if provider, ok := req.impl.(ClearColorProvider); ok {
			if color, ok := provider.ClearColor(req.index); ok {
				clears[req.attachment].Color = color
			}
		}
	}
	if pp.physicalDepthStencilAttachment != Unused {
		attachments = append(attachments, g.physicalAttachments[pp.physicalDepthStencilAttachment])
		clear := driver.ClearValue{Depth: 1}
		if pp.depthClearRequest != nil {
			if provider, ok := pp.depthClearRequest.impl.(ClearDepthStencilProvider); ok {
				if depth, stencil, ok := provider.ClearDepthStencil(); ok {
					clear.Depth = depth
					clear.Stencil = stencil
				}
			}
		}
		clears = append(clears, clear)
	}

	cmd.BeginRenderPass(&pp.renderPassDesc, attachments, clears)
	for sub, passIndex := range pp.passes {
		if sub > 0 {
			cmd.NextSubpass()
		}
		g.enqueueScaledRequests(cmd, pp.scaledClearRequests[sub])
		pass := g.passes[passIndex]
		pass.impl.BuildRenderPass(pass, cmd)
	}
	cmd.EndRenderPass()

	// The render pass leaves each attachment in its declared final
	// layout.
	for slot, phys := range pp.physicalColorAttachments {
		g.trackedLayout[phys] = pp.renderPassDesc.ColorAttachments[slot].FinalLayout
	}
	if pp.physicalDepthStencilAttachment != Unused && pp.renderPassDesc.DepthStencil != nil {
		g.trackedLayout[pp.physicalDepthStencilAttachment] = pp.renderPassDesc.DepthStencil.FinalLayout
	}
}

// enqueueScaledRequests blits sources of another resolution into the
// subpass's color attachments with a full-screen sampled draw.
func (g *RenderGraph) enqueueScaledRequests(cmd driver.CommandBuffer, requests []scaledClearRequest) {
	for _, req := range requests {
		cmd.SetProgram(BlitVertexShader, BlitFragmentShader, nil)
		cmd.SetTexture(0, req.target, g.PhysicalTextureResource(req.physicalResource), driver.SamplerLinearClamp)
		cmd.DrawQuad()
	}
}

// swapHistoryImages exchanges the current and history image of every
// double-buffered slot, so history accessors observe the frame that
// just ended.
func (g *RenderGraph) swapHistoryImages() {
	for i := range g.physicalImageAttachments {
		if i >= len(g.physicalImageHasHistory) || !g.physicalImageHasHistory[i] {
			continue
		}
		if g.physicalHistoryImageAttachments[i] == nil {
			continue
		}
		g.physicalImageAttachments[i], g.physicalHistoryImageAttachments[i] =
			g.physicalHistoryImageAttachments[i], g.physicalImageAttachments[i]
		g.physicalAttachments[i] = g.physicalImageAttachments[i].View()
		g.trackedLayout[i], g.trackedHistoryLayout[i] =
			g.trackedHistoryLayout[i], g.trackedLayout[i]
	}
}

// FrameIndex returns the number of frames executed since the last
// reset.
func (g *RenderGraph) FrameIndex() uint64 { return g.frameIndex }
