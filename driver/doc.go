// Package driver defines the interface between the render graph and a
// low-level, explicit graphics device.
//
// The render graph plans work in terms of image layouts, pipeline-stage
// masks, and memory access scopes, and it emits render passes that may
// contain several subpasses. A backend adapts this vocabulary to a
// concrete API. The [Device] and [CommandBuffer] interfaces intentionally
// expose only what the graph and its pass implementations need: resource
// allocation with transient hints, barrier and layout-transition
// recording, render-pass begin/next/end, and a small draw/dispatch
// surface for recording pass contents.
//
// Backends live outside this package; see backend/wgpu for an adapter
// over gogpu/wgpu's HAL.
package driver
