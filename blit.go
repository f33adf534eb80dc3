package granite

import (
	"github.com/KonajuGames/granite/driver"
)

// Shader names used by the built-in blit path. Backends resolve these
// through their shader registry; backend/wgpu ships WGSL sources for
// both.
const (
	BlitVertexShader   = "builtin/quad.vert"
	BlitFragmentShader = "builtin/blit.frag"
)

// ShaderBlit is a ready-made pass implementation that performs a
// full-screen draw over the pass's attachments, sampling its texture
// inputs with a stock sampler. It covers the common post-processing
// shape: bind inputs, draw a quad with the named shaders.
type ShaderBlit struct {
	vertex   string
	fragment string
	defines  []driver.ShaderDefine
	sampler  driver.StockSampler
}

// NewShaderBlit creates a blit implementation drawing with the named
// vertex and fragment shaders. The sampler defaults to LinearClamp.
func NewShaderBlit(vertex, fragment string) *ShaderBlit {
	return &ShaderBlit{
		vertex:   vertex,
		fragment: fragment,
		sampler:  driver.SamplerLinearClamp,
	}
}

// SetDefines attaches shader defines passed through to program lookup.
func (s *ShaderBlit) SetDefines(defines []driver.ShaderDefine) {
	s.defines = defines
}

// SetSampler overrides the stock sampler used for the texture inputs.
func (s *ShaderBlit) SetSampler(sampler driver.StockSampler) {
	s.sampler = sampler
}

// BuildRenderPass records the full-screen draw.
func (s *ShaderBlit) BuildRenderPass(pass *RenderPass, cmd driver.CommandBuffer) {
	cmd.SetProgram(s.vertex, s.fragment, s.defines)
	pass.SetTextureInputs(cmd, 0, 0, s.sampler)
	cmd.DrawQuad()
}
