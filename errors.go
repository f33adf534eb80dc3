package granite

import "errors"

// Bake-time validation errors. All graph validation is deferred to
// [RenderGraph.Bake]; these are the kinds it can fail with, wrapped
// with the offending pass or resource name. Test with [errors.Is].
var (
	// ErrCycle is returned when a pass's inputs transitively depend on
	// its own outputs.
	ErrCycle = errors.New("granite: dependency cycle in render graph")

	// ErrSelfDependency is returned when a pass reads a resource it
	// also writes without declaring an input twin.
	ErrSelfDependency = errors.New("granite: pass depends on itself")

	// ErrUnproducedResource is returned when a read edge references a
	// resource that no pass writes.
	ErrUnproducedResource = errors.New("granite: resource has no producer")

	// ErrTypeMismatch is returned when the same name is used both as an
	// image and as a buffer.
	ErrTypeMismatch = errors.New("granite: resource type mismatch")

	// ErrDimensionUnresolvable is returned when an input-relative
	// attachment references an unknown resource or size relations form
	// a cycle.
	ErrDimensionUnresolvable = errors.New("granite: cannot resolve resource dimensions")

	// ErrMissingImplementation is returned when a pass survives into
	// the baked plan with no implementation set.
	ErrMissingImplementation = errors.New("granite: pass has no implementation")

	// ErrNoBackbufferSource is returned when Bake runs without a
	// backbuffer source set.
	ErrNoBackbufferSource = errors.New("granite: no backbuffer source set")

	// ErrNotBaked is returned when attachments are set up or passes
	// enqueued before a successful Bake.
	ErrNotBaked = errors.New("granite: graph has not been baked")
)
