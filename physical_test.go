package granite

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/KonajuGames/granite/driver"
)

func TestResolveDimensionsSizeClasses(t *testing.T) {
	g := New()

	pa := g.AddPass("pa", driver.StageColorAttachmentOutput)
	pa.AddColorOutput("abs", AttachmentInfo{
		SizeClass: SizeAbsolute, SizeX: 512, SizeY: 256,
		Format: gputypes.TextureFormatRGBA8Unorm,
	}, "")
	pa.SetImplementation(nopImpl{})

	ph := g.AddPass("ph", driver.StageColorAttachmentOutput)
	ph.AddColorOutput("half", AttachmentInfo{
		SizeClass: SizeSwapchainRelative, SizeX: 0.5, SizeY: 0.5,
		Format: gputypes.TextureFormatRGBA8Unorm,
	}, "")
	ph.SetImplementation(nopImpl{})

	pq := g.AddPass("pq", driver.StageColorAttachmentOutput)
	pq.AddColorOutput("quarter", AttachmentInfo{
		SizeClass: SizeInputRelative, SizeX: 0.5, SizeY: 0.5,
		SizeRelativeName: "half",
		Format:           gputypes.TextureFormatRGBA8Unorm,
	}, "")
	pq.SetImplementation(nopImpl{})

	final := g.AddPass("final", driver.StageFragmentShader)
	final.AddTextureInput("abs")
	final.AddTextureInput("half")
	final.AddTextureInput("quarter")
	final.AddColorOutput("backbuffer", AttachmentInfo{SizeX: 1, SizeY: 1}, "")
	final.SetImplementation(nopImpl{})

	g.SetBackbufferSource("backbuffer")
	g.SetBackbufferDimensions(swapchainDim())
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}

	tests := []struct {
		name   string
		width  uint32
		height uint32
	}{
		{"abs", 512, 256},
		{"half", 640, 360},
		{"quarter", 320, 180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := g.GetTextureResource(tt.name)
			dim := g.physicalDimensions[res.PhysicalIndex()]
			if dim.Width != tt.width || dim.Height != tt.height {
				t.Errorf("%s resolved to %dx%d, want %dx%d",
					tt.name, dim.Width, dim.Height, tt.width, tt.height)
			}
		})
	}
}

func TestResolveDimensionsBackbufferFormatSubstitution(t *testing.T) {
	g := buildChain(t)
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}
	dim := g.physicalDimensions[g.swapchainPhysicalIndex]
	if dim.Format != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("backbuffer format = %d, want swapchain format", dim.Format)
	}
}

func TestResolveDimensionsUnknownReferent(t *testing.T) {
	g := New()
	p := g.AddPass("p", driver.StageFragmentShader)
	p.AddColorOutput("backbuffer", AttachmentInfo{
		SizeClass:        SizeInputRelative,
		SizeX:            1, SizeY: 1,
		SizeRelativeName: "nowhere",
	}, "")
	p.SetImplementation(nopImpl{})

	g.SetBackbufferSource("backbuffer")
	g.SetBackbufferDimensions(swapchainDim())

	if err := g.Bake(); !errors.Is(err, ErrDimensionUnresolvable) {
		t.Errorf("Bake() = %v, want ErrDimensionUnresolvable", err)
	}
}

func TestAliasingDisjointLifetimes(t *testing.T) {
	// Two scratch images with identical shapes and disjoint lifetimes
	// share one physical image.
	g := New()

	info := AttachmentInfo{SizeX: 1, SizeY: 1, Format: gputypes.TextureFormatRGBA8Unorm}

	a := g.AddPass("a", driver.StageColorAttachmentOutput)
	a.AddColorOutput("s0", info, "")
	a.SetImplementation(nopImpl{})

	b := g.AddPass("b", driver.StageFragmentShader)
	b.AddTextureInput("s0")
	b.AddColorOutput("mid", info, "")
	b.SetImplementation(nopImpl{})

	c := g.AddPass("c", driver.StageFragmentShader)
	c.AddTextureInput("mid")
	c.AddColorOutput("s1", info, "")
	c.SetImplementation(nopImpl{})

	d := g.AddPass("d", driver.StageFragmentShader)
	d.AddTextureInput("s1")
	d.AddColorOutput("backbuffer", AttachmentInfo{SizeX: 1, SizeY: 1}, "")
	d.SetImplementation(nopImpl{})

	g.SetBackbufferSource("backbuffer")
	g.SetBackbufferDimensions(swapchainDim())
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}

	s0 := g.GetTextureResource("s0").PhysicalIndex()
	s1 := g.GetTextureResource("s1").PhysicalIndex()
	if s0 != s1 {
		t.Errorf("s0 physical %d != s1 physical %d, want aliased", s0, s1)
	}
	mid := g.GetTextureResource("mid").PhysicalIndex()
	if mid == s0 {
		t.Errorf("mid aliased with s0 despite overlapping lifetime")
	}
}

func TestAliasingOverlappingLifetimesRejected(t *testing.T) {
	g := New()
	info := AttachmentInfo{SizeX: 1, SizeY: 1, Format: gputypes.TextureFormatRGBA8Unorm}

	a := g.AddPass("a", driver.StageColorAttachmentOutput)
	a.AddColorOutput("s0", info, "")
	a.AddColorOutput("s1", info, "")
	a.SetImplementation(nopImpl{})

	b := g.AddPass("b", driver.StageFragmentShader)
	b.AddTextureInput("s0")
	b.AddTextureInput("s1")
	b.AddColorOutput("backbuffer", AttachmentInfo{SizeX: 1, SizeY: 1}, "")
	b.SetImplementation(nopImpl{})

	g.SetBackbufferSource("backbuffer")
	g.SetBackbufferDimensions(swapchainDim())
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}

	s0 := g.GetTextureResource("s0").PhysicalIndex()
	s1 := g.GetTextureResource("s1").PhysicalIndex()
	if s0 == s1 {
		t.Error("overlapping resources share a physical index")
	}
}

func TestInputTwinSharesPhysicalIndex(t *testing.T) {
	g := New()
	info := AttachmentInfo{SizeX: 1, SizeY: 1, Format: gputypes.TextureFormatRGBA8Unorm}

	produce := g.AddPass("produce", driver.StageColorAttachmentOutput)
	produce.AddColorOutput("a", info, "")
	produce.SetImplementation(nopImpl{})

	// Sampling "a" in between keeps produce and modify in separate
	// physical passes, so the twin's load op is observable.
	blur := g.AddPass("blur", driver.StageFragmentShader)
	blur.AddTextureInput("a")
	blur.AddColorOutput("mid", info, "")
	blur.SetImplementation(nopImpl{})

	modify := g.AddPass("modify", driver.StageColorAttachmentOutput)
	modify.AddTextureInput("mid")
	modify.AddColorOutput("b", info, "a")
	modify.SetImplementation(nopImpl{})

	final := g.AddPass("final", driver.StageFragmentShader)
	final.AddTextureInput("b")
	final.AddColorOutput("backbuffer", AttachmentInfo{SizeX: 1, SizeY: 1}, "")
	final.SetImplementation(nopImpl{})

	g.SetBackbufferSource("backbuffer")
	g.SetBackbufferDimensions(swapchainDim())
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}

	aPhys := g.GetTextureResource("a").PhysicalIndex()
	bPhys := g.GetTextureResource("b").PhysicalIndex()
	if aPhys != bPhys {
		t.Errorf("input twin split: a=%d b=%d", aPhys, bPhys)
	}

	// The read-modify-write loads the prior contents.
	pp := g.physicalPasses[g.passes[g.passToIndex["modify"]].physicalPass]
	slot := -1
	for i, phys := range pp.physicalColorAttachments {
		if phys == bPhys {
			slot = i
		}
	}
	if slot < 0 {
		t.Fatalf("twin attachment missing from physical pass")
	}
	if op := pp.renderPassDesc.ColorAttachments[slot].Load; op != driver.LoadOpLoad {
		t.Errorf("twin attachment load op = %d, want LoadOpLoad", op)
	}
}

func TestHistoryIsolation(t *testing.T) {
	g := New()
	info := AttachmentInfo{SizeX: 1, SizeY: 1, Format: gputypes.TextureFormatRGBA8Unorm}

	taa := g.AddPass("taa", driver.StageFragmentShader)
	taa.AddHistoryInput("taa_out")
	taa.AddColorOutput("taa_out", info, "")
	taa.SetImplementation(nopImpl{})

	// An unrelated resource with identical dimensions must not alias
	// with the history image. Its lifetime meets taa_out's at the blur
	// pass, which reads one and writes the other.
	blur := g.AddPass("blur", driver.StageFragmentShader)
	blur.AddTextureInput("taa_out")
	blur.AddColorOutput("blurred", info, "")
	blur.SetImplementation(nopImpl{})

	final := g.AddPass("final", driver.StageFragmentShader)
	final.AddTextureInput("blurred")
	final.AddColorOutput("backbuffer", AttachmentInfo{SizeX: 1, SizeY: 1}, "")
	final.SetImplementation(nopImpl{})

	g.SetBackbufferSource("backbuffer")
	g.SetBackbufferDimensions(swapchainDim())
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}

	taaPhys := g.GetTextureResource("taa_out").PhysicalIndex()
	if !g.physicalImageHasHistory[taaPhys] {
		t.Fatal("history flag not set on taa_out's physical slot")
	}
	if g.GetTextureResource("blurred").PhysicalIndex() == taaPhys {
		t.Error("history slot aliased with another resource")
	}
}

func TestTransientMarking(t *testing.T) {
	// gbuffer color is consumed only as an attachment input inside the
	// merged pass: transient. The swapchain slot is not.
	g := New()
	info := AttachmentInfo{SizeX: 1, SizeY: 1, Format: gputypes.TextureFormatRGBA8Unorm}

	gbuf := g.AddPass("gbuffer", driver.StageColorAttachmentOutput)
	gbuf.AddColorOutput("albedo", info, "")
	gbuf.SetImplementation(nopImpl{})

	light := g.AddPass("lighting", driver.StageFragmentShader)
	light.AddAttachmentInput("albedo")
	light.AddColorOutput("backbuffer", AttachmentInfo{SizeX: 1, SizeY: 1}, "")
	light.SetImplementation(nopImpl{})

	g.SetBackbufferSource("backbuffer")
	g.SetBackbufferDimensions(swapchainDim())
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}

	albedo := g.GetTextureResource("albedo").PhysicalIndex()
	if !g.physicalDimensions[albedo].Transient {
		t.Error("attachment-local resource not marked transient")
	}
	if g.physicalDimensions[g.swapchainPhysicalIndex].Transient {
		t.Error("swapchain slot marked transient")
	}
}

func TestBufferResourceCarriesInfo(t *testing.T) {
	g := New()

	produce := g.AddPass("produce", driver.StageComputeShader)
	produce.AddStorageOutput("counts", BufferInfo{
		Size:       4096,
		Usage:      gputypes.BufferUsageStorage,
		Persistent: true,
	}, "")
	produce.SetImplementation(nopImpl{})

	use := g.AddPass("use", driver.StageFragmentShader)
	use.AddStorageReadOnlyInput("counts")
	use.AddColorOutput("backbuffer", AttachmentInfo{SizeX: 1, SizeY: 1}, "")
	use.SetImplementation(nopImpl{})

	g.SetBackbufferSource("backbuffer")
	g.SetBackbufferDimensions(swapchainDim())
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}

	phys := g.GetBufferResource("counts").PhysicalIndex()
	dim := g.physicalDimensions[phys]
	if !dim.isBuffer() {
		t.Fatal("buffer resource resolved as image")
	}
	if dim.BufferInfo.Size != 4096 || !dim.BufferInfo.Persistent {
		t.Errorf("buffer info not carried through: %+v", dim.BufferInfo)
	}
	if dim.Transient {
		t.Error("buffer marked transient")
	}
}
