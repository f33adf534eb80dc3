package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/KonajuGames/granite/driver"
)

// commandBuffer implements driver.CommandBuffer over a HAL command
// encoder. Errors during recording are deferred into cb.err and
// surfaced by Device.Submit, keeping the recording interface
// fire-and-forget the way pass implementations expect.
type commandBuffer struct {
	dev     *Device
	encoder hal.CommandEncoder
	err     error

	// Current render pass state: the graph's descriptor plus the view
	// and clear list handed to BeginRenderPass, and the subpass cursor.
	rpDesc      *driver.RenderPassDesc
	attachments []driver.ImageView
	clears      []driver.ClearValue
	subpass     int
	rp          hal.RenderPassEncoder

	// attachmentStarted marks attachment slots already written by a
	// replayed subpass, which must load rather than clear from then on.
	attachmentStarted []bool

	// Pending program and bindings for the next draw or dispatch.
	program  programKey
	bindings []binding

	// Per-frame resources destroyed after the submission completes.
	frameBindGroups []hal.BindGroup
}

func newCommandBuffer(dev *Device, encoder hal.CommandEncoder) *commandBuffer {
	return &commandBuffer{dev: dev, encoder: encoder}
}

func (c *commandBuffer) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// layoutToUsage maps a graph image layout onto the HAL's texture usage
// vocabulary for transition barriers.
func layoutToUsage(layout driver.Layout) gputypes.TextureUsage {
	switch layout {
	case driver.LayoutColorAttachmentOptimal,
		driver.LayoutDepthStencilAttachmentOptimal,
		driver.LayoutDepthStencilReadOnlyOptimal,
		driver.LayoutPresentSrc:
		return gputypes.TextureUsageRenderAttachment
	case driver.LayoutShaderReadOnlyOptimal:
		return gputypes.TextureUsageTextureBinding
	case driver.LayoutGeneral:
		return gputypes.TextureUsageStorageBinding
	case driver.LayoutTransferSrcOptimal:
		return gputypes.TextureUsageCopySrc
	case driver.LayoutTransferDstOptimal:
		return gputypes.TextureUsageCopyDst
	}
	return gputypes.TextureUsageRenderAttachment
}

// Barrier drops buffer and global memory barriers: the HAL tracks
// buffer hazards internally.
func (c *commandBuffer) Barrier([]driver.MemoryBarrier) {}

// ImageBarriers records usage transitions for each image barrier with
// a known HAL texture.
func (c *commandBuffer) ImageBarriers(barriers []driver.ImageBarrier) {
	var transitions []hal.TextureBarrier
	for _, b := range barriers {
		view, ok := b.View.(*imageView)
		if !ok || view.tex == nil {
			continue
		}
		oldUsage := layoutToUsage(b.OldLayout)
		newUsage := layoutToUsage(b.NewLayout)
		if b.OldLayout == driver.LayoutUndefined {
			oldUsage = newUsage
		}
		if oldUsage == newUsage && b.OldLayout != driver.LayoutUndefined {
			continue
		}
		transitions = append(transitions, hal.TextureBarrier{
			Texture: view.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: oldUsage,
				NewUsage: newUsage,
			},
		})
	}
	if len(transitions) > 0 {
		c.encoder.TransitionTextures(transitions)
	}
}

// BeginRenderPass begins the first subpass. Later subpasses replay as
// separate HAL render passes in NextSubpass.
func (c *commandBuffer) BeginRenderPass(rp *driver.RenderPassDesc, attachments []driver.ImageView, clear []driver.ClearValue) {
	c.rpDesc = rp
	c.attachments = attachments
	c.clears = clear
	c.subpass = 0
	c.attachmentStarted = make([]bool, len(attachments))
	c.beginSubpass()
}

// NextSubpass ends the current HAL render pass and begins the next
// subpass's replay pass.
func (c *commandBuffer) NextSubpass() {
	if c.rp != nil {
		c.rp.End()
		c.rp = nil
	}
	c.subpass++
	c.beginSubpass()
}

// EndRenderPass ends the current subpass's HAL render pass.
func (c *commandBuffer) EndRenderPass() {
	if c.rp != nil {
		c.rp.End()
		c.rp = nil
	}
	c.rpDesc = nil
	c.attachments = nil
	c.clears = nil
}

// beginSubpass starts the HAL render pass realizing the current
// subpass: its color attachments in subpass order, plus the shared
// depth/stencil attachment if the subpass uses one.
func (c *commandBuffer) beginSubpass() {
	sp := c.rpDesc.Subpasses[c.subpass]

	var colors []hal.RenderPassColorAttachment
	for _, slot := range sp.Colors {
		att := c.rpDesc.ColorAttachments[slot]
		view, ok := c.attachments[slot].(*imageView)
		if !ok {
			c.fail(fmt.Errorf("wgpu: attachment %d from another backend", slot))
			return
		}
		load := convertLoadOp(att.Load)
		if c.attachmentStarted[slot] {
			load = gputypes.LoadOpLoad
		}
		colors = append(colors, hal.RenderPassColorAttachment{
			View:       view.view,
			LoadOp:     load,
			StoreOp:    convertStoreOp(att.Store),
			ClearValue: c.clears[slot].Color,
		})
		c.attachmentStarted[slot] = true
	}

	desc := &hal.RenderPassDescriptor{
		Label:            fmt.Sprintf("granite_subpass_%d", c.subpass),
		ColorAttachments: colors,
	}

	if sp.DepthStencil != driver.SubpassNone && c.rpDesc.DepthStencil != nil {
		slot := len(c.rpDesc.ColorAttachments)
		view, ok := c.attachments[slot].(*imageView)
		if !ok {
			c.fail(fmt.Errorf("wgpu: depth attachment from another backend"))
			return
		}
		load := convertLoadOp(c.rpDesc.DepthStencil.Load)
		if c.attachmentStarted[slot] {
			load = gputypes.LoadOpLoad
		}
		clear := c.clears[slot]
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              view.view,
			DepthLoadOp:       load,
			DepthStoreOp:      convertStoreOp(c.rpDesc.DepthStencil.Store),
			DepthClearValue:   clear.Depth,
			StencilLoadOp:     load,
			StencilStoreOp:    convertStoreOp(c.rpDesc.DepthStencil.Store),
			StencilClearValue: clear.Stencil,
		}
		c.attachmentStarted[slot] = true
	}

	c.rp = c.encoder.BeginRenderPass(desc)
}

// convertLoadOp maps the graph's load op onto WebGPU's two-op model.
// DontCare has no direct equivalent; clearing is the conservative
// realization of undefined contents.
func convertLoadOp(op driver.LoadOp) gputypes.LoadOp {
	if op == driver.LoadOpLoad {
		return gputypes.LoadOpLoad
	}
	return gputypes.LoadOpClear
}

func convertStoreOp(op driver.StoreOp) gputypes.StoreOp {
	if op == driver.StoreOpStore {
		return gputypes.StoreOpStore
	}
	return gputypes.StoreOpDiscard
}

// SetProgram selects the shader program for subsequent draws or
// dispatches and resets pending bindings.
func (c *commandBuffer) SetProgram(vertex, fragment string, defines []driver.ShaderDefine) {
	c.program = newProgramKey(vertex, fragment, defines)
	c.bindings = c.bindings[:0]
}

// SetTexture queues a sampled-texture binding for the next draw.
func (c *commandBuffer) SetTexture(set, bindingIndex int, view driver.ImageView, sampler driver.StockSampler) {
	v, ok := view.(*imageView)
	if !ok {
		c.fail(fmt.Errorf("wgpu: texture binding from another backend"))
		return
	}
	c.bindings = append(c.bindings, binding{
		set:     set,
		binding: bindingIndex,
		kind:    bindTexture,
		view:    v,
		sampler: sampler,
	})
}

// SetStorageTexture queues a storage-image binding.
func (c *commandBuffer) SetStorageTexture(set, bindingIndex int, view driver.ImageView) {
	v, ok := view.(*imageView)
	if !ok {
		c.fail(fmt.Errorf("wgpu: storage texture binding from another backend"))
		return
	}
	c.bindings = append(c.bindings, binding{
		set:     set,
		binding: bindingIndex,
		kind:    bindStorageTexture,
		view:    v,
	})
}

// SetUniformBuffer queues a uniform buffer binding.
func (c *commandBuffer) SetUniformBuffer(set, bindingIndex int, buf driver.Buffer) {
	c.setBuffer(set, bindingIndex, buf, bindUniformBuffer)
}

// SetStorageBuffer queues a storage buffer binding.
func (c *commandBuffer) SetStorageBuffer(set, bindingIndex int, buf driver.Buffer) {
	c.setBuffer(set, bindingIndex, buf, bindStorageBuffer)
}

func (c *commandBuffer) setBuffer(set, bindingIndex int, buf driver.Buffer, kind bindingKind) {
	b, ok := buf.(*buffer)
	if !ok {
		c.fail(fmt.Errorf("wgpu: buffer binding from another backend"))
		return
	}
	c.bindings = append(c.bindings, binding{
		set:     set,
		binding: bindingIndex,
		kind:    kind,
		buffer:  b,
	})
}

// Draw draws with the pending program and bindings inside the current
// subpass.
func (c *commandBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	if c.rp == nil {
		c.fail(fmt.Errorf("wgpu: draw outside a render pass"))
		return
	}
	prog, group, err := c.dev.programs.renderProgram(c.program, c.targetFormats(), c.bindings)
	if err != nil {
		c.fail(err)
		return
	}
	c.rp.SetPipeline(prog)
	if group != nil {
		c.frameBindGroups = append(c.frameBindGroups, group)
		c.rp.SetBindGroup(0, group, nil)
	}
	//nolint:gosec // draw parameters always fit uint32
	c.rp.Draw(uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
}

// DrawQuad draws a full-screen triangle with the pending program.
func (c *commandBuffer) DrawQuad() {
	c.Draw(3, 1, 0, 0)
}

// Dispatch runs compute work with the pending program and bindings.
func (c *commandBuffer) Dispatch(groupsX, groupsY, groupsZ int) {
	pipeline, group, err := c.dev.programs.computeProgram(c.program, c.bindings)
	if err != nil {
		c.fail(err)
		return
	}
	pass := c.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: "granite_dispatch",
	})
	pass.SetPipeline(pipeline)
	if group != nil {
		c.frameBindGroups = append(c.frameBindGroups, group)
		pass.SetBindGroup(0, group, nil)
	}
	//nolint:gosec // dispatch parameters always fit uint32
	pass.Dispatch(uint32(groupsX), uint32(groupsY), uint32(groupsZ))
	pass.End()
}

// targetFormats captures the current subpass's color target formats,
// which key the pipeline cache.
func (c *commandBuffer) targetFormats() []gputypes.TextureFormat {
	if c.rpDesc == nil {
		return nil
	}
	sp := c.rpDesc.Subpasses[c.subpass]
	formats := make([]gputypes.TextureFormat, len(sp.Colors))
	for i, slot := range sp.Colors {
		formats[i] = c.rpDesc.ColorAttachments[slot].Format
	}
	return formats
}

// destroyFrameResources releases per-frame bind groups after the GPU
// has finished with them.
func (c *commandBuffer) destroyFrameResources() {
	for _, group := range c.frameBindGroups {
		c.dev.device.DestroyBindGroup(group)
	}
	c.frameBindGroups = nil
}
