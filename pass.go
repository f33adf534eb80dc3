package granite

import (
	"github.com/gogpu/gputypes"

	"github.com/KonajuGames/granite/driver"
)

// Implementation is the client-provided body of a render pass. The
// executor invokes BuildRenderPass once per frame with the command
// buffer positioned inside the pass's subpass (or, for compute-only
// passes, after the pass's barriers).
//
// Implementations may additionally satisfy [ClearColorProvider] and
// [ClearDepthStencilProvider] to request attachment clears.
type Implementation interface {
	BuildRenderPass(pass *RenderPass, cmd driver.CommandBuffer)
}

// ClearColorProvider is implemented by pass implementations that want
// a color attachment cleared on load.
type ClearColorProvider interface {
	// ClearColor returns the clear value for the color output at the
	// given slot, and whether the attachment should be cleared at all.
	ClearColor(index int) (gputypes.Color, bool)
}

// ClearDepthStencilProvider is implemented by pass implementations
// that want the depth/stencil attachment cleared on load.
type ClearDepthStencilProvider interface {
	ClearDepthStencil() (depth float32, stencil uint32, ok bool)
}

// RenderPass is one logical pass under construction. Edges are added
// through the typed Add/Set methods; [RenderGraph.Bake] schedules the
// pass into a physical pass. The edge lists are not locked after Bake,
// and an edge added later between existing passes and resources does
// not invalidate the baked plan.
type RenderPass struct {
	graph *RenderGraph
	index int
	name  string

	// stages is the pipeline-stage mask the pass's shaders run in. It
	// scopes the barriers inferred for the pass's shader reads.
	stages driver.Stage

	physicalPass int
	impl         Implementation

	// Edge lists hold logical resource indices. colorInputs and
	// colorScaleInputs parallel colorOutputs slot-for-slot; unused
	// slots hold Unused.
	colorOutputs     []int
	colorInputs      []int
	colorScaleInputs []int

	textureInputs         []int
	storageTextureInputs  []int
	storageTextureOutputs []int
	attachmentInputs      []int
	historyInputs         []int

	uniformInputs     []int
	storageOutputs    []int
	storageInputs     []int
	storageReadInputs []int

	depthStencilInput  int
	depthStencilOutput int
}

func newRenderPass(graph *RenderGraph, index int, name string, stages driver.Stage) *RenderPass {
	return &RenderPass{
		graph:              graph,
		index:              index,
		name:               name,
		stages:             stages,
		physicalPass:       Unused,
		depthStencilInput:  Unused,
		depthStencilOutput: Unused,
	}
}

// Name returns the pass name.
func (p *RenderPass) Name() string { return p.name }

// Index returns the stable logical pass index.
func (p *RenderPass) Index() int { return p.index }

// Stages returns the declared pipeline-stage mask.
func (p *RenderPass) Stages() driver.Stage { return p.stages }

// Graph returns the owning graph.
func (p *RenderPass) Graph() *RenderGraph { return p.graph }

// PhysicalPassIndex returns the physical pass this pass was merged
// into, or Unused before baking.
func (p *RenderPass) PhysicalPassIndex() int { return p.physicalPass }

// SetImplementation attaches the pass body invoked during execution.
func (p *RenderPass) SetImplementation(impl Implementation) { p.impl = impl }

// Implementation returns the attached pass body, or nil.
func (p *RenderPass) Implementation() Implementation { return p.impl }

// appendUnique appends idx to list unless already present. Re-adding
// the same resource on the same edge is idempotent.
func appendUnique(list []int, idx int) []int {
	for _, v := range list {
		if v == idx {
			return list
		}
	}
	return append(list, idx)
}

// SetDepthStencilInput declares a read-only depth/stencil attachment.
func (p *RenderPass) SetDepthStencilInput(name string) *TextureResource {
	res := p.graph.GetTextureResource(name)
	res.readInPass(p.index)
	p.depthStencilInput = res.Index()
	return res
}

// SetDepthStencilOutput declares a written depth/stencil attachment.
func (p *RenderPass) SetDepthStencilOutput(name string, info AttachmentInfo) *TextureResource {
	res := p.graph.GetTextureResource(name)
	res.SetAttachmentInfo(info)
	res.writtenInPass(p.index)
	p.depthStencilOutput = res.Index()
	return res
}

// AddColorOutput declares a color attachment write. A non-empty input
// names an input twin: the write is a read-modify-write of that
// resource, and the two share one physical allocation.
func (p *RenderPass) AddColorOutput(name string, info AttachmentInfo, input string) *TextureResource {
	res := p.graph.GetTextureResource(name)
	res.SetAttachmentInfo(info)
	res.writtenInPass(p.index)
	if containsIndex(p.colorOutputs, res.Index()) {
		return res
	}
	p.colorOutputs = append(p.colorOutputs, res.Index())

	if input != "" {
		in := p.graph.GetTextureResource(input)
		in.readInPass(p.index)
		p.colorInputs = append(p.colorInputs, in.Index())
	} else {
		p.colorInputs = append(p.colorInputs, Unused)
	}
	p.colorScaleInputs = append(p.colorScaleInputs, Unused)
	return res
}

// MakeColorInputScaled promotes the color input at slot index to a
// scaled input: instead of being loaded as an attachment, it is
// sampled and blitted into the attachment before the subpass draws,
// scaling between resolutions.
func (p *RenderPass) MakeColorInputScaled(index int) {
	p.colorScaleInputs[index], p.colorInputs[index] = p.colorInputs[index], p.colorScaleInputs[index]
}

// AddTextureInput declares a sampled image read.
func (p *RenderPass) AddTextureInput(name string) *TextureResource {
	res := p.graph.GetTextureResource(name)
	res.readInPass(p.index)
	p.textureInputs = appendUnique(p.textureInputs, res.Index())
	return res
}

// AddAttachmentInput declares an input-attachment (subpass-local)
// read.
func (p *RenderPass) AddAttachmentInput(name string) *TextureResource {
	res := p.graph.GetTextureResource(name)
	res.readInPass(p.index)
	p.attachmentInputs = appendUnique(p.attachmentInputs, res.Index())
	return res
}

// AddHistoryInput declares a read of the resource's value from the
// previous frame. History inputs do not create dependencies within the
// current frame, and force the resource to be double-buffered.
func (p *RenderPass) AddHistoryInput(name string) *TextureResource {
	res := p.graph.GetTextureResource(name)
	res.readInPass(p.index)
	p.historyInputs = appendUnique(p.historyInputs, res.Index())
	return res
}

// AddStorageTextureOutput declares a storage image write, optionally
// twinned with a storage image input it read-modifies.
func (p *RenderPass) AddStorageTextureOutput(name string, info AttachmentInfo, input string) *TextureResource {
	res := p.graph.GetTextureResource(name)
	res.SetAttachmentInfo(info)
	res.SetStorage(true)
	res.writtenInPass(p.index)
	if containsIndex(p.storageTextureOutputs, res.Index()) {
		return res
	}
	p.storageTextureOutputs = append(p.storageTextureOutputs, res.Index())

	if input != "" {
		in := p.graph.GetTextureResource(input)
		in.SetStorage(true)
		in.readInPass(p.index)
		p.storageTextureInputs = append(p.storageTextureInputs, in.Index())
	} else {
		p.storageTextureInputs = append(p.storageTextureInputs, Unused)
	}
	return res
}

// AddStorageTextureInput declares a storage image read without a
// paired write.
func (p *RenderPass) AddStorageTextureInput(name string) *TextureResource {
	res := p.graph.GetTextureResource(name)
	res.SetStorage(true)
	res.readInPass(p.index)
	if !containsIndex(p.storageTextureInputs, res.Index()) {
		p.storageTextureInputs = append(p.storageTextureInputs, res.Index())
		p.storageTextureOutputs = append(p.storageTextureOutputs, Unused)
	}
	return res
}

// AddUniformInput declares a uniform buffer read.
func (p *RenderPass) AddUniformInput(name string) *BufferResource {
	res := p.graph.GetBufferResource(name)
	res.readInPass(p.index)
	p.uniformInputs = appendUnique(p.uniformInputs, res.Index())
	return res
}

// AddStorageReadOnlyInput declares a read-only storage buffer input.
func (p *RenderPass) AddStorageReadOnlyInput(name string) *BufferResource {
	res := p.graph.GetBufferResource(name)
	res.readInPass(p.index)
	p.storageReadInputs = appendUnique(p.storageReadInputs, res.Index())
	return res
}

// AddStorageOutput declares a storage buffer write, optionally twinned
// with a storage buffer input it read-modifies.
func (p *RenderPass) AddStorageOutput(name string, info BufferInfo, input string) *BufferResource {
	res := p.graph.GetBufferResource(name)
	res.SetBufferInfo(info)
	res.writtenInPass(p.index)
	if containsIndex(p.storageOutputs, res.Index()) {
		return res
	}
	p.storageOutputs = append(p.storageOutputs, res.Index())

	if input != "" {
		in := p.graph.GetBufferResource(input)
		in.readInPass(p.index)
		p.storageInputs = append(p.storageInputs, in.Index())
	} else {
		p.storageInputs = append(p.storageInputs, Unused)
	}
	return res
}

// texture returns the texture resource at a logical index.
func (p *RenderPass) texture(index int) *TextureResource {
	return p.graph.resources[index].(*TextureResource)
}

// buffer returns the buffer resource at a logical index.
func (p *RenderPass) buffer(index int) *BufferResource {
	return p.graph.resources[index].(*BufferResource)
}

// resolveTextures maps an index slice to resources, skipping Unused
// slots.
func (p *RenderPass) resolveTextures(indices []int) []*TextureResource {
	out := make([]*TextureResource, 0, len(indices))
	for _, idx := range indices {
		if idx == Unused {
			continue
		}
		out = append(out, p.texture(idx))
	}
	return out
}

// ColorOutputs returns the declared color attachment writes in slot
// order.
func (p *RenderPass) ColorOutputs() []*TextureResource { return p.resolveTextures(p.colorOutputs) }

// ColorInputs returns the declared color attachment reads.
func (p *RenderPass) ColorInputs() []*TextureResource { return p.resolveTextures(p.colorInputs) }

// ColorScaleInputs returns the color inputs promoted to scaled reads.
func (p *RenderPass) ColorScaleInputs() []*TextureResource {
	return p.resolveTextures(p.colorScaleInputs)
}

// TextureInputs returns the declared sampled image reads.
func (p *RenderPass) TextureInputs() []*TextureResource { return p.resolveTextures(p.textureInputs) }

// AttachmentInputs returns the declared input-attachment reads.
func (p *RenderPass) AttachmentInputs() []*TextureResource {
	return p.resolveTextures(p.attachmentInputs)
}

// HistoryInputs returns the declared history reads.
func (p *RenderPass) HistoryInputs() []*TextureResource { return p.resolveTextures(p.historyInputs) }

// StorageTextureOutputs returns the declared storage image writes.
func (p *RenderPass) StorageTextureOutputs() []*TextureResource {
	return p.resolveTextures(p.storageTextureOutputs)
}

// StorageTextureInputs returns the declared storage image reads.
func (p *RenderPass) StorageTextureInputs() []*TextureResource {
	return p.resolveTextures(p.storageTextureInputs)
}

// DepthStencilInput returns the read-only depth attachment, or nil.
func (p *RenderPass) DepthStencilInput() *TextureResource {
	if p.depthStencilInput == Unused {
		return nil
	}
	return p.texture(p.depthStencilInput)
}

// DepthStencilOutput returns the written depth attachment, or nil.
func (p *RenderPass) DepthStencilOutput() *TextureResource {
	if p.depthStencilOutput == Unused {
		return nil
	}
	return p.texture(p.depthStencilOutput)
}

// SetTextureInputs binds every texture input of the pass to
// consecutive bindings of one descriptor set, in declaration order.
func (p *RenderPass) SetTextureInputs(cmd driver.CommandBuffer, set, startBinding int, sampler driver.StockSampler) {
	for i, idx := range p.textureInputs {
		if idx == Unused {
			continue
		}
		phys := p.texture(idx).PhysicalIndex()
		cmd.SetTexture(set, startBinding+i, p.graph.PhysicalTextureResource(phys), sampler)
	}
}

// isRaster reports whether the pass performs raster work: it has at
// least one color or depth attachment output. Compute-only passes
// never merge into multi-subpass render passes.
func (p *RenderPass) isRaster() bool {
	return len(p.colorOutputs) > 0 || p.depthStencilOutput != Unused
}
