package wgpu

import (
	_ "embed"
)

// Built-in shader names resolved by every Device's registry. The
// render graph's BlitVertexShader and BlitFragmentShader names, used by
// the executor's scaled-clear blits, reference these.
const (
	builtinQuadVertexName   = "builtin/quad.vert"
	builtinBlitFragmentName = "builtin/blit.frag"
)

//go:embed shaders/quad.wgsl
var quadVertexWGSL string

//go:embed shaders/blit.wgsl
var blitFragmentWGSL string
