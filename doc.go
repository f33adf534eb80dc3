// Package granite implements a render graph: a declarative layer over
// an explicit graphics API in which a frame is described as a directed
// acyclic graph of render passes reading and writing named resources.
//
// A client declares passes and their typed edges, names the resource
// that feeds the backbuffer, and calls [RenderGraph.Bake]. Baking turns
// the declaration into an execution plan: a topologically ordered pass
// list, a physical resource pool with transient aliasing, merged
// multi-subpass render passes, and the pipeline barriers required for
// correctness. [RenderGraph.SetupAttachments] materializes the physical
// pool against a device, and [RenderGraph.EnqueueRenderPasses] records
// one frame.
//
// # Quick Start
//
//	graph := granite.New()
//	pass := graph.AddPass("tonemap", driver.StageFragmentShader)
//	pass.AddTextureInput("hdr")
//	pass.AddColorOutput("backbuffer", granite.AttachmentInfo{
//	    SizeClass: granite.SizeSwapchainRelative,
//	    SizeX:     1, SizeY: 1,
//	}, "")
//	pass.SetImplementation(granite.NewShaderBlit("quad.vert", "tonemap.frag"))
//
//	graph.SetBackbufferSource("backbuffer")
//	graph.SetBackbufferDimensions(dim)
//	if err := graph.Bake(); err != nil {
//	    return err
//	}
//	graph.SetupAttachments(device, swapchainView)
//	graph.EnqueueRenderPasses(device) // once per frame
//
// # Architecture
//
// The graph is built on one thread, baked when the declaration or the
// swapchain changes, and replayed per frame. Logical passes never
// mutate graph state during execution; they only record commands into
// the provided command buffer. The device abstraction lives in the
// driver package; backend/wgpu adapts it to gogpu/wgpu's HAL.
package granite
