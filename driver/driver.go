package driver

import "github.com/gogpu/gputypes"

// StockSampler selects one of a small set of pre-created samplers.
type StockSampler int

// Stock samplers.
const (
	SamplerLinearClamp StockSampler = iota
	SamplerNearestClamp
	SamplerLinearWrap
	SamplerNearestWrap
	SamplerTrilinearClamp
	SamplerTrilinearWrap
)

// ShaderDefine is a preprocessor-style definition passed to a shader
// program looked up by name.
type ShaderDefine struct {
	Name  string
	Value int
}

// ImageDesc describes an image allocation.
type ImageDesc struct {
	Width  uint32
	Height uint32
	Levels uint32
	Layers uint32
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage

	// Transient hints that the image contents never leave the render
	// pass that writes them, so the backend may use lazy or on-chip
	// backing where supported.
	Transient bool
}

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	Size  uint64
	Usage gputypes.BufferUsage
}

// Image is an allocated GPU image.
type Image interface {
	// View returns the whole-image view.
	View() ImageView

	Width() uint32
	Height() uint32
	Format() gputypes.TextureFormat

	Destroy()
}

// ImageView is a view over an image, usable as an attachment or a
// sampled texture.
type ImageView interface {
	Width() uint32
	Height() uint32
	Format() gputypes.TextureFormat
}

// Buffer is an allocated GPU buffer.
type Buffer interface {
	Size() uint64
	Destroy()
}

// Device is the graph-facing slice of a graphics device: resource
// allocation and command-buffer acquisition and submission. Stock
// samplers are chosen per binding through [CommandBuffer.SetTexture].
// Implementations need not be safe for concurrent use; the
// graph drives a single timeline.
type Device interface {
	NewImage(desc *ImageDesc) (Image, error)
	NewBuffer(desc *BufferDesc) (Buffer, error)

	// RequestCommandBuffer acquires a command buffer ready for
	// recording.
	RequestCommandBuffer() (CommandBuffer, error)

	// Submit enqueues a recorded command buffer for execution.
	Submit(cmd CommandBuffer) error
}

// CommandBuffer records GPU work. The render-graph executor records
// barriers and render-pass structure; pass implementations record draws
// and dispatches in between.
type CommandBuffer interface {
	// Barrier inserts global and buffer memory barriers.
	Barrier(barriers []MemoryBarrier)

	// ImageBarriers inserts image layout transitions with their
	// associated memory dependencies.
	ImageBarriers(barriers []ImageBarrier)

	// BeginRenderPass begins the first subpass of rp. attachments
	// carries one view per attachment in rp's order, color first and
	// depth/stencil (if any) last. clear carries one entry per
	// attachment; entries for LoadOpLoad attachments are ignored.
	BeginRenderPass(rp *RenderPassDesc, attachments []ImageView, clear []ClearValue)

	// NextSubpass advances to the following subpass. It must not be
	// called in the last subpass.
	NextSubpass()

	// EndRenderPass ends the current render pass.
	EndRenderPass()

	// SetProgram selects the shader program for subsequent draws or
	// dispatches by shader name. A compute program passes its name as
	// vertex with an empty fragment.
	SetProgram(vertex, fragment string, defines []ShaderDefine)

	// SetTexture binds a sampled image.
	SetTexture(set, binding int, view ImageView, sampler StockSampler)

	// SetStorageTexture binds a storage image.
	SetStorageTexture(set, binding int, view ImageView)

	// SetUniformBuffer and SetStorageBuffer bind buffer ranges.
	SetUniformBuffer(set, binding int, buf Buffer)
	SetStorageBuffer(set, binding int, buf Buffer)

	// Draw draws non-indexed primitives with the bound program.
	Draw(vertCount, instCount, baseVert, baseInst int)

	// DrawQuad draws a full-screen quad with the bound program.
	DrawQuad()

	// Dispatch dispatches compute work with the bound program.
	Dispatch(groupsX, groupsY, groupsZ int)
}
