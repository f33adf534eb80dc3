package granite

import (
	"fmt"

	"github.com/KonajuGames/granite/driver"
)

// barrier is one planned transition: the layout, access mask and stage
// mask a physical resource must be in before (invalidate) or is left
// in after (flush) a pass.
type barrier struct {
	resourceIndex int
	layout        driver.Layout
	access        driver.Access
	stages        driver.Stage
	history       bool
}

// barriers groups the invalidate and flush sets of one logical pass.
type barriers struct {
	invalidate []barrier
	flush      []barrier
}

// colorClearRequest asks a pass implementation for the clear value of
// one color attachment at execution time.
type colorClearRequest struct {
	impl  Implementation
	index int

	// attachment is the index into the physical pass's color
	// attachment list the clear applies to.
	attachment int
}

// depthClearRequest asks a pass implementation for the depth/stencil
// clear values at execution time.
type depthClearRequest struct {
	impl Implementation
}

// scaledClearRequest queues a scaling blit from a physical resource of
// another resolution into a subpass color attachment before the subpass
// draws.
type scaledClearRequest struct {
	// target is the color attachment slot written by the blit.
	target int

	// physicalResource is the physical index of the sampled source.
	physicalResource int
}

// physicalPass is one merged render-pass unit of the baked plan.
type physicalPass struct {
	// passes lists the logical passes merged into this physical pass,
	// in subpass order.
	passes []int

	invalidate []barrier
	flush      []barrier

	// renderPassDesc is only populated for raster passes; compute-only
	// physical passes record no render pass.
	renderPassDesc driver.RenderPassDesc

	physicalColorAttachments       []int
	physicalDepthStencilAttachment int

	colorClearRequests []colorClearRequest
	depthClearRequest  *depthClearRequest

	// scaledClearRequests holds one request list per subpass.
	scaledClearRequests [][]scaledClearRequest
}

// RenderGraph owns the declared passes and resources and, after Bake,
// the execution plan. Passes and resources live in arena slices owned
// by the graph and reference each other by integer indices.
type RenderGraph struct {
	passes    []*RenderPass
	resources []renderResource

	passToIndex     map[string]int
	resourceToIndex map[string]int

	backbufferSource    string
	swapchainDimensions ResourceDimensions

	// declErr records the first declaration-time misuse (a name used
	// as both image and buffer); it is surfaced by Bake.
	declErr error

	// Baked plan. Invalidated by adding a pass, creating a resource,
	// SetBackbufferSource and SetBackbufferDimensions. Adding an edge
	// between an existing pass and an existing resource, changing an
	// edge's declared info, and SetImplementation leave it in place.
	baked                    bool
	passStack                []int
	passBarriers             []barriers
	physicalPasses           []physicalPass
	physicalDimensions       []ResourceDimensions
	initialBarriers          []barrier
	initialTopOfPipeBarriers []barrier

	// Physical allocations, populated by SetupAttachments.
	physicalAttachments             []driver.ImageView
	physicalBuffers                 []driver.Buffer
	physicalImageAttachments        []driver.Image
	physicalHistoryImageAttachments []driver.Image
	physicalImageHasHistory         []bool

	swapchainAttachment    driver.ImageView
	swapchainPhysicalIndex int

	// frameIndex counts executed frames; history accessors return nil
	// until the first frame completes.
	frameIndex       uint64
	coldStartEmitted bool

	// Per-physical-slot execution state: the stages/access of the most
	// recent flushed write and the layout each image currently sits
	// in. trackedHistoryLayout shadows the history image of
	// double-buffered slots and swaps with trackedLayout each frame.
	trackedStages        []driver.Stage
	trackedAccess        []driver.Access
	trackedLayout        []driver.Layout
	trackedHistoryLayout []driver.Layout
}

// New creates an empty render graph.
func New() *RenderGraph {
	return &RenderGraph{
		passToIndex:            make(map[string]int),
		resourceToIndex:        make(map[string]int),
		swapchainPhysicalIndex: Unused,
	}
}

// AddPass returns the pass registered under name, creating it with the
// given pipeline-stage mask on first use.
func (g *RenderGraph) AddPass(name string, stages driver.Stage) *RenderPass {
	if idx, ok := g.passToIndex[name]; ok {
		return g.passes[idx]
	}
	index := len(g.passes)
	pass := newRenderPass(g, index, name, stages)
	g.passes = append(g.passes, pass)
	g.passToIndex[name] = index
	g.invalidateBake()
	return pass
}

// GetTextureResource returns the image resource registered under name,
// creating it on first reference. Using a buffer name is recorded as a
// type mismatch and surfaced by Bake.
func (g *RenderGraph) GetTextureResource(name string) *TextureResource {
	if idx, ok := g.resourceToIndex[name]; ok {
		if tex, ok := g.resources[idx].(*TextureResource); ok {
			return tex
		}
		if g.declErr == nil {
			g.declErr = fmt.Errorf("%w: %q used as both image and buffer", ErrTypeMismatch, name)
		}
		// Return a detached resource so the builder chain stays usable;
		// Bake fails before it can matter.
		return &TextureResource{resourceBase: newResourceBase(ResourceTexture, Unused, name)}
	}
	index := len(g.resources)
	res := &TextureResource{resourceBase: newResourceBase(ResourceTexture, index, name)}
	g.resources = append(g.resources, res)
	g.resourceToIndex[name] = index
	g.invalidateBake()
	return res
}

// GetBufferResource returns the buffer resource registered under name,
// creating it on first reference. Using an image name is recorded as a
// type mismatch and surfaced by Bake.
func (g *RenderGraph) GetBufferResource(name string) *BufferResource {
	if idx, ok := g.resourceToIndex[name]; ok {
		if buf, ok := g.resources[idx].(*BufferResource); ok {
			return buf
		}
		if g.declErr == nil {
			g.declErr = fmt.Errorf("%w: %q used as both image and buffer", ErrTypeMismatch, name)
		}
		return &BufferResource{resourceBase: newResourceBase(ResourceBuffer, Unused, name)}
	}
	index := len(g.resources)
	res := &BufferResource{resourceBase: newResourceBase(ResourceBuffer, index, name)}
	g.resources = append(g.resources, res)
	g.resourceToIndex[name] = index
	g.invalidateBake()
	return res
}

// SetBackbufferSource names the resource that feeds the swapchain.
func (g *RenderGraph) SetBackbufferSource(name string) {
	g.backbufferSource = name
	g.invalidateBake()
}

// SetBackbufferDimensions records the swapchain dimensions that
// swapchain-relative attachments scale from.
func (g *RenderGraph) SetBackbufferDimensions(dim ResourceDimensions) {
	g.swapchainDimensions = dim
	g.invalidateBake()
}

// invalidateBake drops the baked plan; it must be rebuilt before
// execution.
func (g *RenderGraph) invalidateBake() {
	g.baked = false
}

// clearPlan discards every baked structure, leaving only declarations.
func (g *RenderGraph) clearPlan() {
	g.baked = false
	g.passStack = nil
	g.passBarriers = nil
	g.physicalPasses = nil
	g.physicalDimensions = nil
	g.initialBarriers = nil
	g.initialTopOfPipeBarriers = nil
	g.physicalImageHasHistory = nil
	g.swapchainPhysicalIndex = Unused
}

// Reset tears the graph down to empty: declarations, plan and physical
// allocations are all released.
func (g *RenderGraph) Reset() {
	g.releaseAttachments()
	g.passes = nil
	g.resources = nil
	g.passToIndex = make(map[string]int)
	g.resourceToIndex = make(map[string]int)
	g.backbufferSource = ""
	g.declErr = nil
	g.frameIndex = 0
	g.coldStartEmitted = false
	g.clearPlan()
}

// PhysicalTextureResource returns the image view bound to a physical
// slot. It panics if attachments have not been set up.
func (g *RenderGraph) PhysicalTextureResource(index int) driver.ImageView {
	if g.physicalAttachments[index] == nil {
		panic(fmt.Sprintf("granite: physical attachment %d not set up", index))
	}
	return g.physicalAttachments[index]
}

// PhysicalHistoryTextureResource returns the previous frame's image
// for a history-enabled slot. On the first frame there is no previous
// value yet and it returns nil.
func (g *RenderGraph) PhysicalHistoryTextureResource(index int) driver.ImageView {
	if g.frameIndex == 0 || g.physicalHistoryImageAttachments[index] == nil {
		return nil
	}
	return g.physicalHistoryImageAttachments[index].View()
}

// PhysicalBufferResource returns the buffer bound to a physical slot.
func (g *RenderGraph) PhysicalBufferResource(index int) driver.Buffer {
	if g.physicalBuffers[index] == nil {
		panic(fmt.Sprintf("granite: physical buffer %d not set up", index))
	}
	return g.physicalBuffers[index]
}

// ConsumePersistentPhysicalBuffer detaches and returns the buffer in a
// physical slot so callers can keep feedback data alive across a
// rebake. Returns nil if the slot holds no buffer.
func (g *RenderGraph) ConsumePersistentPhysicalBuffer(index int) driver.Buffer {
	if index >= len(g.physicalBuffers) {
		return nil
	}
	buf := g.physicalBuffers[index]
	g.physicalBuffers[index] = nil
	return buf
}

// InstallPersistentPhysicalBuffer places a previously consumed buffer
// back into a physical slot.
func (g *RenderGraph) InstallPersistentPhysicalBuffer(index int, buf driver.Buffer) {
	for len(g.physicalBuffers) <= index {
		g.physicalBuffers = append(g.physicalBuffers, nil)
	}
	g.physicalBuffers[index] = buf
}

// ConsumePhysicalBuffers detaches and returns the whole physical
// buffer list, for preserving feedback buffers across a rebake.
func (g *RenderGraph) ConsumePhysicalBuffers() []driver.Buffer {
	bufs := g.physicalBuffers
	g.physicalBuffers = nil
	return bufs
}

// InstallPhysicalBuffers restores a buffer list captured by
// ConsumePhysicalBuffers.
func (g *RenderGraph) InstallPhysicalBuffers(bufs []driver.Buffer) {
	g.physicalBuffers = bufs
}
