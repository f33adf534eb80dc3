package granite

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/KonajuGames/granite/driver"
)

// physicalImageUsage derives the usage bits for a physical image slot
// from every edge that touches a logical resource mapped onto it.
func (g *RenderGraph) physicalImageUsage(phys int) gputypes.TextureUsage {
	var usage gputypes.TextureUsage
	for resIndex, res := range g.resources {
		base := res.base()
		if base.physicalIndex != phys {
			continue
		}
		for _, passIndex := range g.passStack {
			pass := g.passes[passIndex]
			if containsIndex(pass.colorOutputs, resIndex) ||
				containsIndex(pass.colorInputs, resIndex) ||
				containsIndex(pass.attachmentInputs, resIndex) ||
				pass.depthStencilOutput == resIndex ||
				pass.depthStencilInput == resIndex {
				usage |= gputypes.TextureUsageRenderAttachment
			}
			if containsIndex(pass.textureInputs, resIndex) ||
				containsIndex(pass.colorScaleInputs, resIndex) ||
				containsIndex(pass.historyInputs, resIndex) {
				usage |= gputypes.TextureUsageTextureBinding
			}
			if containsIndex(pass.storageTextureInputs, resIndex) ||
				containsIndex(pass.storageTextureOutputs, resIndex) {
				usage |= gputypes.TextureUsageStorageBinding
			}
		}
	}
	return usage
}

// imageMatches reports whether an existing allocation still fits the
// requested dimensions, allowing persistent contents to survive a
// SetupAttachments call.
func imageMatches(img driver.Image, dim ResourceDimensions) bool {
	return img != nil &&
		img.Width() == dim.Width &&
		img.Height() == dim.Height &&
		img.Format() == dim.Format
}

// SetupAttachments materializes the physical resource pool against a
// device: images and buffers are allocated per the baked dimensions,
// and the externally owned swapchain view is bound into its reserved
// slot. Persistent resources with unchanged dimensions are preserved;
// everything else is recreated.
func (g *RenderGraph) SetupAttachments(device driver.Device, swapchain driver.ImageView) error {
	if !g.baked {
		return ErrNotBaked
	}

	count := len(g.physicalDimensions)

	oldImages := g.physicalImageAttachments
	oldHistory := g.physicalHistoryImageAttachments
	oldBuffers := g.physicalBuffers

	g.physicalAttachments = make([]driver.ImageView, count)
	g.physicalImageAttachments = make([]driver.Image, count)
	g.physicalHistoryImageAttachments = make([]driver.Image, count)
	g.physicalBuffers = make([]driver.Buffer, count)
	g.swapchainAttachment = swapchain

	takeOld := func(list []driver.Image, i int) driver.Image {
		if i < len(list) {
			img := list[i]
			list[i] = nil
			return img
		}
		return nil
	}

	for i, dim := range g.physicalDimensions {
		if i == g.swapchainPhysicalIndex {
			g.physicalAttachments[i] = swapchain
			continue
		}

		if dim.isBuffer() {
			if old := func() driver.Buffer {
				if i < len(oldBuffers) {
					b := oldBuffers[i]
					oldBuffers[i] = nil
					return b
				}
				return nil
			}(); old != nil && dim.Persistent && old.Size() == dim.BufferInfo.Size {
				g.physicalBuffers[i] = old
				continue
			}
			buf, err := device.NewBuffer(&driver.BufferDesc{
				Size:  dim.BufferInfo.Size,
				Usage: dim.BufferInfo.Usage,
			})
			if err != nil {
				return fmt.Errorf("allocate physical buffer %d: %w", i, err)
			}
			g.physicalBuffers[i] = buf
			continue
		}

		preserved, err := g.setupPhysicalImage(device, i, dim, takeOld(oldImages, i), takeOld(oldHistory, i))
		if err != nil {
			return err
		}
		if !preserved {
			g.resetTrackedSlot(i)
		}
	}

	// Release whatever the new plan no longer uses.
	for _, img := range oldImages {
		if img != nil {
			img.Destroy()
		}
	}
	for _, img := range oldHistory {
		if img != nil {
			img.Destroy()
		}
	}
	for _, buf := range oldBuffers {
		if buf != nil {
			buf.Destroy()
		}
	}
	return nil
}

// setupPhysicalImage allocates (or preserves) the image backing one
// physical slot, including the double-buffered pair for
// history-enabled slots. It reports whether the existing allocation
// survived, so execution-state tracking can be reset for fresh images.
func (g *RenderGraph) setupPhysicalImage(device driver.Device, i int, dim ResourceDimensions, oldImage, oldHistoryImage driver.Image) (bool, error) {
	usage := g.physicalImageUsage(i)
	desc := driver.ImageDesc{
		Width:     dim.Width,
		Height:    dim.Height,
		Levels:    dim.Levels,
		Layers:    dim.Layers,
		Format:    dim.Format,
		Usage:     usage,
		Transient: dim.Transient,
	}

	preserve := dim.Persistent && imageMatches(oldImage, dim)
	if preserve {
		g.physicalImageAttachments[i] = oldImage
	} else {
		if oldImage != nil {
			oldImage.Destroy()
		}
		img, err := device.NewImage(&desc)
		if err != nil {
			return false, fmt.Errorf("allocate physical image %d: %w", i, err)
		}
		g.physicalImageAttachments[i] = img
	}
	g.physicalAttachments[i] = g.physicalImageAttachments[i].View()

	if g.physicalImageHasHistory[i] {
		if dim.Persistent && imageMatches(oldHistoryImage, dim) {
			g.physicalHistoryImageAttachments[i] = oldHistoryImage
		} else {
			if oldHistoryImage != nil {
				oldHistoryImage.Destroy()
			}
			img, err := device.NewImage(&desc)
			if err != nil {
				return false, fmt.Errorf("allocate history image %d: %w", i, err)
			}
			g.physicalHistoryImageAttachments[i] = img
			preserve = false
		}
	} else if oldHistoryImage != nil {
		oldHistoryImage.Destroy()
	}
	return preserve, nil
}

// resetTrackedSlot clears the execution state of a freshly created
// physical image so the next frame transitions it from undefined.
func (g *RenderGraph) resetTrackedSlot(i int) {
	if i >= len(g.trackedLayout) {
		return
	}
	g.trackedLayout[i] = driver.LayoutUndefined
	g.trackedHistoryLayout[i] = driver.LayoutUndefined
	g.trackedStages[i] = driver.StageNone
	g.trackedAccess[i] = driver.AccessNone
}

// releaseAttachments destroys every graph-owned physical allocation.
// The swapchain view is externally owned and only unbound.
func (g *RenderGraph) releaseAttachments() {
	for _, img := range g.physicalImageAttachments {
		if img != nil {
			img.Destroy()
		}
	}
	for _, img := range g.physicalHistoryImageAttachments {
		if img != nil {
			img.Destroy()
		}
	}
	for _, buf := range g.physicalBuffers {
		if buf != nil {
			buf.Destroy()
		}
	}
	g.physicalImageAttachments = nil
	g.physicalHistoryImageAttachments = nil
	g.physicalBuffers = nil
	g.physicalAttachments = nil
	g.swapchainAttachment = nil
}

// OnSwapchainChanged handles a swapchain change event: dependent
// dimensions are recomputed, the graph is rebaked, and attachments are
// set up against the new swapchain view. Persistent feedback buffers
// survive the rebake.
func (g *RenderGraph) OnSwapchainChanged(device driver.Device, view driver.ImageView) error {
	g.SetBackbufferDimensions(ResourceDimensions{
		Width:  view.Width(),
		Height: view.Height(),
		Depth:  1,
		Layers: 1,
		Levels: 1,
		Format: view.Format(),
	})
	buffers := g.ConsumePhysicalBuffers()
	if err := g.Bake(); err != nil {
		return err
	}
	g.InstallPhysicalBuffers(buffers)
	return g.SetupAttachments(device, view)
}

// OnSwapchainDestroyed handles a swapchain destruction event by
// releasing all physical allocations.
func (g *RenderGraph) OnSwapchainDestroyed() {
	g.releaseAttachments()
	g.coldStartEmitted = false
	g.frameIndex = 0
}
