package wgpu

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/KonajuGames/granite/driver"
)

// shaderRegistry maps shader names to WGSL sources.
type shaderRegistry struct {
	mu      sync.RWMutex
	sources map[string]string
}

func newShaderRegistry() *shaderRegistry {
	r := &shaderRegistry{sources: make(map[string]string)}
	r.register(builtinQuadVertexName, quadVertexWGSL)
	r.register(builtinBlitFragmentName, blitFragmentWGSL)
	return r
}

func (r *shaderRegistry) register(name, wgsl string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = wgsl
}

func (r *shaderRegistry) source(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[name]
	return src, ok
}

// programKey identifies one shader program: vertex + fragment names
// and the define list, rendered into a stable string.
type programKey struct {
	vertex   string
	fragment string
	defines  string
}

func newProgramKey(vertex, fragment string, defines []driver.ShaderDefine) programKey {
	if len(defines) == 0 {
		return programKey{vertex: vertex, fragment: fragment}
	}
	parts := make([]string, len(defines))
	for i, d := range defines {
		parts[i] = fmt.Sprintf("%s=%d", d.Name, d.Value)
	}
	sort.Strings(parts)
	return programKey{vertex: vertex, fragment: fragment, defines: strings.Join(parts, ",")}
}

// bindingKind tags one pending resource binding.
type bindingKind int

const (
	bindTexture bindingKind = iota
	bindStorageTexture
	bindUniformBuffer
	bindStorageBuffer
)

// binding is one pending resource binding for the next draw or
// dispatch.
type binding struct {
	set     int
	binding int
	kind    bindingKind
	view    *imageView
	buffer  *buffer
	sampler driver.StockSampler
}

// programCache lazily creates shader modules, pipelines, bind group
// layouts and samplers, keyed by program and target formats.
type programCache struct {
	dev *Device

	mu        sync.Mutex
	modules   map[string]hal.ShaderModule
	renders   map[string]hal.RenderPipeline
	layouts   map[string]pipelineLayouts
	computes  map[programKey]hal.ComputePipeline
	compLayts map[programKey]pipelineLayouts
	samplers  map[driver.StockSampler]hal.Sampler
}

// pipelineLayouts pairs a pipeline layout with the bind group layout
// bind groups are created against.
type pipelineLayouts struct {
	pipeline  hal.PipelineLayout
	bindGroup hal.BindGroupLayout
}

func newProgramCache(dev *Device) *programCache {
	return &programCache{
		dev:       dev,
		modules:   make(map[string]hal.ShaderModule),
		renders:   make(map[string]hal.RenderPipeline),
		layouts:   make(map[string]pipelineLayouts),
		computes:  make(map[programKey]hal.ComputePipeline),
		compLayts: make(map[programKey]pipelineLayouts),
		samplers:  make(map[driver.StockSampler]hal.Sampler),
	}
}

// module compiles and caches the WGSL source registered under name.
func (p *programCache) module(name string) (hal.ShaderModule, error) {
	if mod, ok := p.modules[name]; ok {
		return mod, nil
	}
	src, ok := p.dev.shaders.source(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShader, name)
	}
	mod, err := p.dev.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: hal.ShaderSource{WGSL: src},
	})
	if err != nil {
		return nil, fmt.Errorf("compile shader %q: %w", name, err)
	}
	p.modules[name] = mod
	return mod, nil
}

// bindingLayoutEntries derives a bind group layout from the pending
// bindings. Texture bindings occupy their declared slot with the
// sampler at the slot immediately after the highest binding.
func bindingLayoutEntries(bindings []binding, visibility gputypes.ShaderStage) ([]gputypes.BindGroupLayoutEntry, int) {
	maxBinding := -1
	for _, b := range bindings {
		if b.binding > maxBinding {
			maxBinding = b.binding
		}
	}
	samplerBinding := maxBinding + 1

	var entries []gputypes.BindGroupLayoutEntry
	hasSampler := false
	for _, b := range bindings {
		//nolint:gosec // binding indices are small
		idx := uint32(b.binding)
		switch b.kind {
		case bindTexture:
			entries = append(entries, gputypes.BindGroupLayoutEntry{
				Binding:    idx,
				Visibility: visibility,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			})
			hasSampler = true
		case bindStorageTexture:
			entries = append(entries, gputypes.BindGroupLayoutEntry{
				Binding:    idx,
				Visibility: visibility,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			})
		case bindUniformBuffer:
			entries = append(entries, gputypes.BindGroupLayoutEntry{
				Binding:    idx,
				Visibility: visibility,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			})
		case bindStorageBuffer:
			entries = append(entries, gputypes.BindGroupLayoutEntry{
				Binding:    idx,
				Visibility: visibility,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
			})
		}
	}
	if hasSampler {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			//nolint:gosec // binding indices are small
			Binding:    uint32(samplerBinding),
			Visibility: visibility,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		})
	}
	return entries, samplerBinding
}

// sampler returns the cached HAL sampler for a stock sampler.
func (p *programCache) sampler(stock driver.StockSampler) (hal.Sampler, error) {
	if smp, ok := p.samplers[stock]; ok {
		return smp, nil
	}

	address := gputypes.AddressModeClampToEdge
	switch stock {
	case driver.SamplerLinearWrap, driver.SamplerNearestWrap, driver.SamplerTrilinearWrap:
		address = gputypes.AddressModeRepeat
	}
	filter := gputypes.FilterModeLinear
	switch stock {
	case driver.SamplerNearestClamp, driver.SamplerNearestWrap:
		filter = gputypes.FilterModeNearest
	}
	mipFilter := gputypes.FilterModeNearest
	switch stock {
	case driver.SamplerTrilinearClamp, driver.SamplerTrilinearWrap:
		mipFilter = gputypes.FilterModeLinear
	}

	smp, err := p.dev.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        fmt.Sprintf("granite_sampler_%d", stock),
		AddressModeU: address,
		AddressModeV: address,
		AddressModeW: address,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: mipFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("create sampler: %w", err)
	}
	p.samplers[stock] = smp
	return smp, nil
}

// bindGroup creates the bind group realizing the pending bindings
// against the given layout.
func (p *programCache) bindGroup(layout hal.BindGroupLayout, bindings []binding, samplerBinding int) (hal.BindGroup, error) {
	if len(bindings) == 0 {
		return nil, nil
	}

	var entries []gputypes.BindGroupEntry
	var stock driver.StockSampler
	hasSampler := false
	for _, b := range bindings {
		//nolint:gosec // binding indices are small
		idx := uint32(b.binding)
		switch b.kind {
		case bindTexture, bindStorageTexture:
			entries = append(entries, gputypes.BindGroupEntry{
				Binding: idx,
				Resource: gputypes.TextureViewBinding{
					TextureView: b.view.view.NativeHandle(),
				},
			})
			if b.kind == bindTexture {
				stock = b.sampler
				hasSampler = true
			}
		case bindUniformBuffer, bindStorageBuffer:
			entries = append(entries, gputypes.BindGroupEntry{
				Binding: idx,
				Resource: gputypes.BufferBinding{
					Buffer: b.buffer.buf.NativeHandle(),
					Offset: 0,
					Size:   b.buffer.size,
				},
			})
		}
	}
	if hasSampler {
		smp, err := p.sampler(stock)
		if err != nil {
			return nil, err
		}
		entries = append(entries, gputypes.BindGroupEntry{
			//nolint:gosec // binding indices are small
			Binding: uint32(samplerBinding),
			Resource: gputypes.SamplerBinding{
				Sampler: smp.NativeHandle(),
			},
		})
	}

	group, err := p.dev.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "granite_bind",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	return group, nil
}

// renderKey extends the program key with the subpass's color target
// formats.
func renderKey(key programKey, formats []gputypes.TextureFormat) string {
	parts := make([]string, 0, len(formats)+3)
	parts = append(parts, key.vertex, key.fragment, key.defines)
	for _, f := range formats {
		parts = append(parts, fmt.Sprintf("f%d", f))
	}
	return strings.Join(parts, "|")
}

// renderProgram returns the cached render pipeline for the program and
// target formats, plus a bind group for the pending bindings.
func (p *programCache) renderProgram(key programKey, formats []gputypes.TextureFormat, bindings []binding) (hal.RenderPipeline, hal.BindGroup, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ck := renderKey(key, formats)
	layouts, haveLayouts := p.layouts[ck]
	if !haveLayouts {
		entries, _ := bindingLayoutEntries(bindings, gputypes.ShaderStageVertex|gputypes.ShaderStageFragment)
		groupLayout, err := p.dev.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   "granite_bind_layout",
			Entries: entries,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create bind group layout: %w", err)
		}
		pipeLayout, err := p.dev.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            "granite_pipe_layout",
			BindGroupLayouts: []hal.BindGroupLayout{groupLayout},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create pipeline layout: %w", err)
		}
		layouts = pipelineLayouts{pipeline: pipeLayout, bindGroup: groupLayout}
		p.layouts[ck] = layouts
	}

	pipeline, ok := p.renders[ck]
	if !ok {
		vertMod, err := p.module(key.vertex)
		if err != nil {
			return nil, nil, err
		}
		fragMod, err := p.module(key.fragment)
		if err != nil {
			return nil, nil, err
		}

		targets := make([]gputypes.ColorTargetState, len(formats))
		for i, f := range formats {
			targets[i] = gputypes.ColorTargetState{
				Format:    f,
				WriteMask: gputypes.ColorWriteMaskAll,
			}
		}
		pipeline, err = p.dev.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
			Label:  key.vertex + "+" + key.fragment,
			Layout: layouts.pipeline,
			Vertex: hal.VertexState{
				Module:     vertMod,
				EntryPoint: "vs_main",
			},
			Fragment: &hal.FragmentState{
				Module:     fragMod,
				EntryPoint: "fs_main",
				Targets:    targets,
			},
			Primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleList,
				CullMode: gputypes.CullModeNone,
			},
			Multisample: gputypes.MultisampleState{
				Count: 1,
				Mask:  0xFFFFFFFF,
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create render pipeline: %w", err)
		}
		p.renders[ck] = pipeline
	}

	_, samplerBinding := bindingLayoutEntries(bindings, gputypes.ShaderStageVertex|gputypes.ShaderStageFragment)
	group, err := p.bindGroup(layouts.bindGroup, bindings, samplerBinding)
	if err != nil {
		return nil, nil, err
	}
	return pipeline, group, nil
}

// computeProgram returns the cached compute pipeline for the program,
// plus a bind group for the pending bindings. Compute programs pass
// the shader name as the vertex slot.
func (p *programCache) computeProgram(key programKey, bindings []binding) (hal.ComputePipeline, hal.BindGroup, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	layouts, haveLayouts := p.compLayts[key]
	if !haveLayouts {
		entries, _ := bindingLayoutEntries(bindings, gputypes.ShaderStageCompute)
		groupLayout, err := p.dev.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   "granite_compute_bind_layout",
			Entries: entries,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create bind group layout: %w", err)
		}
		pipeLayout, err := p.dev.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            "granite_compute_pipe_layout",
			BindGroupLayouts: []hal.BindGroupLayout{groupLayout},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create pipeline layout: %w", err)
		}
		layouts = pipelineLayouts{pipeline: pipeLayout, bindGroup: groupLayout}
		p.compLayts[key] = layouts
	}

	pipeline, ok := p.computes[key]
	if !ok {
		mod, err := p.module(key.vertex)
		if err != nil {
			return nil, nil, err
		}
		pipeline, err = p.dev.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  key.vertex,
			Layout: layouts.pipeline,
			Compute: hal.ComputeState{
				Module:     mod,
				EntryPoint: "cs_main",
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create compute pipeline: %w", err)
		}
		p.computes[key] = pipeline
	}

	_, samplerBinding := bindingLayoutEntries(bindings, gputypes.ShaderStageCompute)
	group, err := p.bindGroup(layouts.bindGroup, bindings, samplerBinding)
	if err != nil {
		return nil, nil, err
	}
	return pipeline, group, nil
}
