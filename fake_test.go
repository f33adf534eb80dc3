package granite

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/KonajuGames/granite/driver"
)

// The fakes below stand in for a GPU device so executor behavior can
// be asserted without hardware, mirroring the mock-device pattern the
// GPU backends use in their tests.

type fakeImage struct {
	desc      driver.ImageDesc
	destroyed bool
	view      *fakeView
}

func newFakeImage(desc driver.ImageDesc) *fakeImage {
	img := &fakeImage{desc: desc}
	img.view = &fakeView{image: img}
	return img
}

func (f *fakeImage) View() driver.ImageView         { return f.view }
func (f *fakeImage) Width() uint32                  { return f.desc.Width }
func (f *fakeImage) Height() uint32                 { return f.desc.Height }
func (f *fakeImage) Format() gputypes.TextureFormat { return f.desc.Format }
func (f *fakeImage) Destroy()                       { f.destroyed = true }

type fakeView struct {
	image  *fakeImage
	width  uint32
	height uint32
	format gputypes.TextureFormat
}

func (f *fakeView) Width() uint32 {
	if f.image != nil {
		return f.image.desc.Width
	}
	return f.width
}

func (f *fakeView) Height() uint32 {
	if f.image != nil {
		return f.image.desc.Height
	}
	return f.height
}

func (f *fakeView) Format() gputypes.TextureFormat {
	if f.image != nil {
		return f.image.desc.Format
	}
	return f.format
}

type fakeBuffer struct {
	desc      driver.BufferDesc
	destroyed bool
}

func (f *fakeBuffer) Size() uint64 { return f.desc.Size }
func (f *fakeBuffer) Destroy()     { f.destroyed = true }

// fakeDevice implements driver.Device and records allocations.
type fakeDevice struct {
	images  []*fakeImage
	buffers []*fakeBuffer

	submitted []*fakeCommandBuffer
}

func newFakeDevice() *fakeDevice { return &fakeDevice{} }

func (d *fakeDevice) NewImage(desc *driver.ImageDesc) (driver.Image, error) {
	img := newFakeImage(*desc)
	d.images = append(d.images, img)
	return img, nil
}

func (d *fakeDevice) NewBuffer(desc *driver.BufferDesc) (driver.Buffer, error) {
	buf := &fakeBuffer{desc: *desc}
	d.buffers = append(d.buffers, buf)
	return buf, nil
}

func (d *fakeDevice) RequestCommandBuffer() (driver.CommandBuffer, error) {
	return &fakeCommandBuffer{}, nil
}

func (d *fakeDevice) Submit(cmd driver.CommandBuffer) error {
	d.submitted = append(d.submitted, cmd.(*fakeCommandBuffer))
	return nil
}

// liveImages counts allocations not yet destroyed.
func (d *fakeDevice) liveImages() int {
	n := 0
	for _, img := range d.images {
		if !img.destroyed {
			n++
		}
	}
	return n
}

// fakeCommandBuffer records every call as a readable op string.
type fakeCommandBuffer struct {
	ops []string

	imageBarriers []driver.ImageBarrier
	subpass       int
}

func (c *fakeCommandBuffer) op(format string, args ...any) {
	c.ops = append(c.ops, fmt.Sprintf(format, args...))
}

func (c *fakeCommandBuffer) Barrier(b []driver.MemoryBarrier) {
	c.op("barrier n=%d", len(b))
}

func (c *fakeCommandBuffer) ImageBarriers(b []driver.ImageBarrier) {
	c.imageBarriers = append(c.imageBarriers, b...)
	for _, bar := range b {
		c.op("imageBarrier %s->%s", bar.OldLayout, bar.NewLayout)
	}
}

func (c *fakeCommandBuffer) BeginRenderPass(rp *driver.RenderPassDesc, attachments []driver.ImageView, clear []driver.ClearValue) {
	c.subpass = 0
	c.op("beginRenderPass colors=%d subpasses=%d", len(rp.ColorAttachments), len(rp.Subpasses))
}

func (c *fakeCommandBuffer) NextSubpass() {
	c.subpass++
	c.op("nextSubpass %d", c.subpass)
}

func (c *fakeCommandBuffer) EndRenderPass() {
	c.op("endRenderPass")
}

func (c *fakeCommandBuffer) SetProgram(vertex, fragment string, defines []driver.ShaderDefine) {
	c.op("setProgram %s %s", vertex, fragment)
}

func (c *fakeCommandBuffer) SetTexture(set, binding int, view driver.ImageView, sampler driver.StockSampler) {
	c.op("setTexture %d:%d", set, binding)
}

func (c *fakeCommandBuffer) SetStorageTexture(set, binding int, view driver.ImageView) {
	c.op("setStorageTexture %d:%d", set, binding)
}

func (c *fakeCommandBuffer) SetUniformBuffer(set, binding int, buf driver.Buffer) {
	c.op("setUniformBuffer %d:%d", set, binding)
}

func (c *fakeCommandBuffer) SetStorageBuffer(set, binding int, buf driver.Buffer) {
	c.op("setStorageBuffer %d:%d", set, binding)
}

func (c *fakeCommandBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	c.op("draw %d", vertCount)
}

func (c *fakeCommandBuffer) DrawQuad() {
	c.op("drawQuad")
}

func (c *fakeCommandBuffer) Dispatch(x, y, z int) {
	c.op("dispatch %d %d %d", x, y, z)
}

// countOps returns how many recorded ops start with prefix.
func (c *fakeCommandBuffer) countOps(prefix string) int {
	n := 0
	for _, op := range c.ops {
		if len(op) >= len(prefix) && op[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// nopImpl is the minimal pass implementation.
type nopImpl struct{}

func (nopImpl) BuildRenderPass(*RenderPass, driver.CommandBuffer) {}

// clearImpl requests clears for every color output and the depth
// attachment.
type clearImpl struct {
	color gputypes.Color
	depth float32
}

func (c *clearImpl) BuildRenderPass(*RenderPass, driver.CommandBuffer) {}

func (c *clearImpl) ClearColor(int) (gputypes.Color, bool) {
	return c.color, true
}

func (c *clearImpl) ClearDepthStencil() (float32, uint32, bool) {
	return c.depth, 0, true
}

// swapchainDim is the standard swapchain used by tests.
func swapchainDim() ResourceDimensions {
	return ResourceDimensions{
		Width:  1280,
		Height: 720,
		Depth:  1,
		Layers: 1,
		Levels: 1,
		Format: gputypes.TextureFormatBGRA8Unorm,
	}
}

// swapchainView returns a view matching swapchainDim.
func swapchainView() driver.ImageView {
	return &fakeView{width: 1280, height: 720, format: gputypes.TextureFormatBGRA8Unorm}
}
