package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/KonajuGames/granite/driver"
)

// Adapter errors.
var (
	// ErrNilHALDevice is returned when creating a Device without a HAL
	// device or queue.
	ErrNilHALDevice = errors.New("wgpu: HAL device is nil")

	// ErrUnknownShader is returned when a program references a shader
	// name with no registered WGSL source.
	ErrUnknownShader = errors.New("wgpu: unknown shader name")
)

// Device implements driver.Device over a hal.Device and hal.Queue.
type Device struct {
	device hal.Device
	queue  hal.Queue

	shaders  *shaderRegistry
	programs *programCache
}

// NewDevice wraps a HAL device and queue. The built-in blit shaders
// are registered immediately; RegisterShader adds application shaders.
func NewDevice(device hal.Device, queue hal.Queue) (*Device, error) {
	if device == nil || queue == nil {
		return nil, ErrNilHALDevice
	}
	d := &Device{
		device:  device,
		queue:   queue,
		shaders: newShaderRegistry(),
	}
	d.programs = newProgramCache(d)
	return d, nil
}

// RegisterShader associates a WGSL source with a shader name used by
// CommandBuffer.SetProgram.
func (d *Device) RegisterShader(name, wgsl string) {
	d.shaders.register(name, wgsl)
}

// NewImage allocates a texture and its default view.
func (d *Device) NewImage(desc *driver.ImageDesc) (driver.Image, error) {
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: "granite_image",
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.Layers,
		},
		MipLevelCount: desc.Levels,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture: %w", err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:     "granite_image_view",
		Format:    gputypes.TextureFormatUndefined, // inherit from texture
		Dimension: gputypes.TextureViewDimensionUndefined,
		Aspect:    gputypes.TextureAspectAll,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create texture view: %w", err)
	}
	return &image{
		device: d.device,
		tex:    tex,
		view:   &imageView{view: view, width: desc.Width, height: desc.Height, format: desc.Format, tex: tex},
	}, nil
}

// NewBuffer allocates a buffer.
func (d *Device) NewBuffer(desc *driver.BufferDesc) (driver.Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "granite_buffer",
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer: %w", err)
	}
	return &buffer{device: d.device, buf: buf, size: desc.Size}, nil
}

// RequestCommandBuffer acquires an encoder ready for recording.
func (d *Device) RequestCommandBuffer() (driver.CommandBuffer, error) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "granite_frame",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("granite_frame"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	return newCommandBuffer(d, encoder), nil
}

// Submit finishes encoding, submits, and waits for completion.
func (d *Device) Submit(cmd driver.CommandBuffer) error {
	cb, ok := cmd.(*commandBuffer)
	if !ok {
		return errors.New("wgpu: command buffer from another backend")
	}
	if cb.err != nil {
		cb.encoder.DiscardEncoding()
		return cb.err
	}

	halBuf, err := cb.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(halBuf)

	if _, err := d.queue.Submit([]hal.CommandBuffer{halBuf}); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := d.device.WaitIdle(); err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	cb.destroyFrameResources()
	return nil
}

// image implements driver.Image.
type image struct {
	device hal.Device
	tex    hal.Texture
	view   *imageView
}

func (i *image) View() driver.ImageView         { return i.view }
func (i *image) Width() uint32                  { return i.view.width }
func (i *image) Height() uint32                 { return i.view.height }
func (i *image) Format() gputypes.TextureFormat { return i.view.format }

func (i *image) Destroy() {
	if i.view.view != nil {
		i.view.view.Destroy()
		i.view.view = nil
	}
	if i.tex != nil {
		i.device.DestroyTexture(i.tex)
		i.tex = nil
	}
}

// imageView implements driver.ImageView. The backing texture is kept
// for usage transitions, which the HAL scopes to textures rather than
// views.
type imageView struct {
	view   hal.TextureView
	tex    hal.Texture
	width  uint32
	height uint32
	format gputypes.TextureFormat
}

func (v *imageView) Width() uint32                  { return v.width }
func (v *imageView) Height() uint32                 { return v.height }
func (v *imageView) Format() gputypes.TextureFormat { return v.format }

// WrapSwapchainView adapts an externally owned HAL texture view (the
// swapchain image) into a driver.ImageView. The texture may be nil
// when the surface does not expose one; usage transitions are then
// skipped for it.
func WrapSwapchainView(view hal.TextureView, tex hal.Texture, width, height uint32, format gputypes.TextureFormat) driver.ImageView {
	return &imageView{view: view, tex: tex, width: width, height: height, format: format}
}

// buffer implements driver.Buffer.
type buffer struct {
	device hal.Device
	buf    hal.Buffer
	size   uint64
}

func (b *buffer) Size() uint64 { return b.size }

func (b *buffer) Destroy() {
	if b.buf != nil {
		b.device.DestroyBuffer(b.buf)
		b.buf = nil
	}
}
