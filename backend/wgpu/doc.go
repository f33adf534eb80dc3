// Package wgpu adapts the render graph's driver interfaces to
// gogpu/wgpu's HAL.
//
// The HAL exposes WebGPU semantics: usage-transition barriers instead
// of raw layout transitions, and render passes without subpasses. The
// adapter maps accordingly:
//
//   - Image layouts become texture usage transitions
//     ([hal.CommandEncoder.TransitionTextures]).
//   - Each subpass of a merged render pass replays as its own HAL
//     render pass, with attachments written by earlier subpasses
//     loading their stored contents. Attachment inputs are bound as
//     sampled textures.
//   - Buffer memory barriers are dropped; the HAL tracks buffer
//     hazards itself.
//
// Shader programs are looked up by name through a registry of WGSL
// sources. Pipelines are created lazily and cached per program and
// color-target format combination; samplers are cached per stock
// sampler.
package wgpu
