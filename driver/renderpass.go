package driver

import "github.com/gogpu/gputypes"

// LoadOp is an attachment's load operation.
type LoadOp int

// Load operations.
const (
	LoadOpDontCare LoadOp = iota
	LoadOpClear
	LoadOpLoad
)

// StoreOp is an attachment's store operation.
type StoreOp int

// Store operations.
const (
	StoreOpDontCare StoreOp = iota
	StoreOpStore
)

// AttachmentDesc describes one render target of a render pass.
type AttachmentDesc struct {
	Format gputypes.TextureFormat
	Load   LoadOp
	Store  StoreOp

	// InitialLayout is the layout the image is in when the render pass
	// begins; FinalLayout is the layout it is left in afterwards.
	InitialLayout Layout
	FinalLayout   Layout
}

// SubpassNone marks an unused attachment slot in a subpass.
const SubpassNone = -1

// SubpassDesc describes one subpass. Color, Inputs and DepthStencil
// index into the enclosing RenderPassDesc's attachment list, with the
// depth/stencil attachment (if any) stored last.
type SubpassDesc struct {
	Colors []int
	Inputs []int

	// DepthStencil is SubpassNone when the subpass has no depth
	// attachment.
	DepthStencil int

	// DepthStencilReadOnly marks the depth attachment as read-only for
	// this subpass.
	DepthStencilReadOnly bool
}

// SubpassDependency is a barrier between two subpasses of the same
// render pass. It replaces an explicit pipeline barrier for resources
// that stay on-chip between subpasses.
type SubpassDependency struct {
	// Src and Dst are subpass indices. SubpassExternal denotes a
	// dependency on work outside the render pass.
	Src int
	Dst int

	SrcStages Stage
	DstStages Stage
	SrcAccess Access
	DstAccess Access

	// ByRegion marks the dependency as framebuffer-local.
	ByRegion bool
}

// SubpassExternal is the Src or Dst of a dependency that reaches
// outside the render pass.
const SubpassExternal = -1

// RenderPassDesc is the complete description of one physical render
// pass: its attachments (color first, optional depth/stencil last),
// its subpasses, and the dependencies between them.
type RenderPassDesc struct {
	ColorAttachments []AttachmentDesc
	DepthStencil     *AttachmentDesc
	Subpasses        []SubpassDesc
	Dependencies     []SubpassDependency
}

// ClearValue holds the clear color or depth/stencil values for one
// attachment. Only the fields matching the attachment's aspect are
// read.
type ClearValue struct {
	Color   gputypes.Color
	Depth   float32
	Stencil uint32
}
