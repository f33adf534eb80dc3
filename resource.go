package granite

import "github.com/gogpu/gputypes"

// Unused marks an index that has not been assigned yet: a resource with
// no physical slot, a pass with no physical pass, or an absent
// depth/stencil attachment.
const Unused = -1

// SizeClass selects how an attachment's two size scalars are
// interpreted when resolving physical dimensions.
type SizeClass int

const (
	// SizeSwapchainRelative scales the swapchain dimensions. This is
	// the default for a zero-valued AttachmentInfo.
	SizeSwapchainRelative SizeClass = iota

	// SizeAbsolute uses the scalars directly as pixel dimensions.
	SizeAbsolute

	// SizeInputRelative scales the resolved dimensions of the resource
	// named by SizeRelativeName.
	SizeInputRelative
)

// AttachmentInfo describes an image resource as declared on a pass
// edge. Zero size scalars are treated as 1.0, so the zero value is a
// full-resolution swapchain-relative attachment with an undefined
// format. Only the backbuffer source replaces an undefined format with
// the swapchain format; other resources keep it undefined.
type AttachmentInfo struct {
	SizeClass SizeClass
	SizeX     float32
	SizeY     float32
	Format    gputypes.TextureFormat

	// SizeRelativeName names the referent resource when SizeClass is
	// SizeInputRelative.
	SizeRelativeName string

	// Persistent keeps the allocation alive across SetupAttachments
	// calls when dimensions are unchanged.
	Persistent bool
}

// BufferInfo describes a buffer resource. Equality on BufferInfo
// drives physical reuse.
type BufferInfo struct {
	Size       uint64
	Usage      gputypes.BufferUsage
	Persistent bool
}

// ResourceDimensions is the fully resolved physical shape of one
// resource: either image extents plus format, or carried-through
// buffer info.
type ResourceDimensions struct {
	Format     gputypes.TextureFormat
	BufferInfo BufferInfo
	Width      uint32
	Height     uint32
	Depth      uint32
	Layers     uint32
	Levels     uint32
	Transient  bool
	Persistent bool
	Storage    bool
}

// isBuffer reports whether the dimensions describe a buffer.
func (d *ResourceDimensions) isBuffer() bool {
	return d.BufferInfo.Size != 0 || d.BufferInfo.Usage != 0
}

// Equal reports whether two dimension records describe compatible
// physical allocations. Compatible records may share one physical
// resource if their lifetimes permit.
func (d ResourceDimensions) Equal(other ResourceDimensions) bool {
	return d.Format == other.Format &&
		d.Width == other.Width &&
		d.Height == other.Height &&
		d.Depth == other.Depth &&
		d.Layers == other.Layers &&
		d.Levels == other.Levels &&
		d.BufferInfo == other.BufferInfo &&
		d.Transient == other.Transient &&
		d.Persistent == other.Persistent &&
		d.Storage == other.Storage
}

// ResourceType distinguishes the two kinds of logical resources.
type ResourceType int

const (
	// ResourceTexture is an image resource.
	ResourceTexture ResourceType = iota

	// ResourceBuffer is a buffer resource.
	ResourceBuffer
)

// resourceBase carries the state shared by texture and buffer
// resources: identity, the passes touching it, and the physical slot
// assigned during baking.
type resourceBase struct {
	typ           ResourceType
	index         int
	name          string
	physicalIndex int

	// writtenInPasses and readInPasses hold logical pass indices.
	writtenInPasses map[int]struct{}
	readInPasses    map[int]struct{}
}

func newResourceBase(typ ResourceType, index int, name string) resourceBase {
	return resourceBase{
		typ:             typ,
		index:           index,
		name:            name,
		physicalIndex:   Unused,
		writtenInPasses: make(map[int]struct{}),
		readInPasses:    make(map[int]struct{}),
	}
}

func (r *resourceBase) writtenInPass(pass int) { r.writtenInPasses[pass] = struct{}{} }
func (r *resourceBase) readInPass(pass int)    { r.readInPasses[pass] = struct{}{} }

// Type returns the resource kind.
func (r *resourceBase) Type() ResourceType { return r.typ }

// Index returns the stable logical index.
func (r *resourceBase) Index() int { return r.index }

// Name returns the client-facing name.
func (r *resourceBase) Name() string { return r.name }

// PhysicalIndex returns the physical slot assigned during baking, or
// Unused before a successful bake.
func (r *resourceBase) PhysicalIndex() int { return r.physicalIndex }

// renderResource is the tagged-variant view of a logical resource held
// by the graph's arena.
type renderResource interface {
	base() *resourceBase
}

// TextureResource is a logical image resource.
type TextureResource struct {
	resourceBase

	info      AttachmentInfo
	transient bool
	storage   bool
}

func (t *TextureResource) base() *resourceBase { return &t.resourceBase }

// SetAttachmentInfo records the attachment descriptor declared on a
// write edge.
func (t *TextureResource) SetAttachmentInfo(info AttachmentInfo) { t.info = info }

// AttachmentInfo returns the declared attachment descriptor.
func (t *TextureResource) AttachmentInfo() AttachmentInfo { return t.info }

// SetTransient records the flag reported by Transient. Bake does not
// read it: physical transience is derived from how the resource is used
// within the baked physical passes.
func (t *TextureResource) SetTransient(enable bool) { t.transient = enable }

// Transient reports the transient flag.
func (t *TextureResource) Transient() bool { return t.transient }

// SetStorage marks the image as usable as a storage image.
func (t *TextureResource) SetStorage(enable bool) { t.storage = enable }

// Storage reports the storage flag.
func (t *TextureResource) Storage() bool { return t.storage }

// BufferResource is a logical buffer resource.
type BufferResource struct {
	resourceBase

	info BufferInfo
}

func (b *BufferResource) base() *resourceBase { return &b.resourceBase }

// SetBufferInfo records the buffer descriptor declared on a write edge.
func (b *BufferResource) SetBufferInfo(info BufferInfo) { b.info = info }

// BufferInfo returns the declared buffer descriptor.
func (b *BufferResource) BufferInfo() BufferInfo { return b.info }
