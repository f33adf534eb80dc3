package driver

// Stage is a bitmask of GPU pipeline stages. It is used both to declare
// where a render-graph pass runs and to scope synchronization barriers.
type Stage uint32

// Pipeline stages.
const (
	StageTopOfPipe Stage = 1 << iota
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe

	StageNone Stage = 0
)

// StageAllGraphics covers every raster stage.
const StageAllGraphics = StageVertexShader | StageFragmentShader |
	StageEarlyFragmentTests | StageLateFragmentTests | StageColorAttachmentOutput

// Access is a bitmask of memory access scopes.
type Access uint32

// Memory access scopes.
const (
	AccessColorAttachmentRead Access = 1 << iota
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessInputAttachmentRead
	AccessShaderRead
	AccessShaderWrite
	AccessUniformRead
	AccessTransferRead
	AccessTransferWrite
	AccessMemoryRead

	AccessNone Access = 0
)

// Layout is an image layout. Images must be transitioned to the layout
// a consuming stage expects before that stage runs.
type Layout int

// Image layouts.
const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachmentOptimal
	LayoutDepthStencilAttachmentOptimal
	LayoutDepthStencilReadOnlyOptimal
	LayoutShaderReadOnlyOptimal
	LayoutTransferSrcOptimal
	LayoutTransferDstOptimal
	LayoutPresentSrc
)

// String returns the layout name as it appears in plan dumps.
func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutColorAttachmentOptimal:
		return "ColorAttachmentOptimal"
	case LayoutDepthStencilAttachmentOptimal:
		return "DepthStencilAttachmentOptimal"
	case LayoutDepthStencilReadOnlyOptimal:
		return "DepthStencilReadOnlyOptimal"
	case LayoutShaderReadOnlyOptimal:
		return "ShaderReadOnlyOptimal"
	case LayoutTransferSrcOptimal:
		return "TransferSrcOptimal"
	case LayoutTransferDstOptimal:
		return "TransferDstOptimal"
	case LayoutPresentSrc:
		return "PresentSrc"
	}
	return "Unknown"
}

// MemoryBarrier is an execution and memory dependency between two sets
// of pipeline stages.
type MemoryBarrier struct {
	SrcStages Stage
	DstStages Stage
	SrcAccess Access
	DstAccess Access
}

// ImageBarrier is a memory barrier combined with an image layout
// transition on a specific view.
type ImageBarrier struct {
	MemoryBarrier

	OldLayout Layout
	NewLayout Layout
	View      ImageView
}

// BufferBarrier is a memory barrier scoped to a single buffer.
type BufferBarrier struct {
	MemoryBarrier

	Buffer Buffer
}
