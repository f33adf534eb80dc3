package granite

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/KonajuGames/granite/driver"
)

func TestSetupAttachmentsRequiresBake(t *testing.T) {
	g := New()
	if err := g.SetupAttachments(newFakeDevice(), swapchainView()); !errors.Is(err, ErrNotBaked) {
		t.Errorf("SetupAttachments on unbaked graph = %v, want ErrNotBaked", err)
	}
}

func TestSetupAttachmentsBindsSwapchain(t *testing.T) {
	g := buildChain(t)
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}

	dev := newFakeDevice()
	view := swapchainView()
	if err := g.SetupAttachments(dev, view); err != nil {
		t.Fatalf("SetupAttachments() = %v", err)
	}

	if g.physicalAttachments[g.swapchainPhysicalIndex] != view {
		t.Error("swapchain slot not bound to the provided view")
	}
	// hdr is the only internal allocation; the swapchain slot must not
	// be allocated by the graph.
	if len(dev.images) != 1 {
		t.Errorf("allocated %d images, want 1", len(dev.images))
	}
}

func TestSetupAttachmentsAliasedSlotsAllocateOnce(t *testing.T) {
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

	dev := newFakeDevice()
	if err := g.SetupAttachments(dev, swapchainView()); err != nil {
		t.Fatalf("SetupAttachments() = %v", err)
	}
	// s0 and s1 share one image; mid has its own.
	if len(dev.images) != 2 {
		t.Errorf("allocated %d images, want 2", len(dev.images))
	}
}

func TestSetupAttachmentsHistoryAllocatesPair(t *testing.T) {
	g := New()

	taa := g.AddPass("taa", driver.StageFragmentShader)
	taa.AddHistoryInput("taa_out")
	taa.AddColorOutput("taa_out", AttachmentInfo{
		SizeX: 1, SizeY: 1, Format: gputypes.TextureFormatRGBA8Unorm,
	}, "")
	taa.SetImplementation(nopImpl{})

	final := g.AddPass("final", driver.StageFragmentShader)
	final.AddTextureInput("taa_out")
	final.AddColorOutput("backbuffer", AttachmentInfo{SizeX: 1, SizeY: 1}, "")
	final.SetImplementation(nopImpl{})

	g.SetBackbufferSource("backbuffer")
	g.SetBackbufferDimensions(swapchainDim())
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}

	dev := newFakeDevice()
	if err := g.SetupAttachments(dev, swapchainView()); err != nil {
		t.Fatalf("SetupAttachments() = %v", err)
	}

	taaPhys := g.GetTextureResource("taa_out").PhysicalIndex()
	if g.physicalImageAttachments[taaPhys] == nil || g.physicalHistoryImageAttachments[taaPhys] == nil {
		t.Fatal("history slot missing one of its two images")
	}
	if len(dev.images) != 2 {
		t.Errorf("allocated %d images, want 2 (current + history)", len(dev.images))
	}
}

func TestSetupAttachmentsPreservesPersistent(t *testing.T) {
	g := New()

	scene := g.AddPass("scene", driver.StageColorAttachmentOutput)
	scene.AddColorOutput("accum", AttachmentInfo{
		SizeX: 1, SizeY: 1,
		Format:     gputypes.TextureFormatRGBA8Unorm,
		Persistent: true,
	}, "")
	scene.SetImplementation(nopImpl{})

	final := g.AddPass("final", driver.StageFragmentShader)
	final.AddTextureInput("accum")
	final.AddColorOutput("backbuffer", AttachmentInfo{SizeX: 1, SizeY: 1}, "")
	final.SetImplementation(nopImpl{})

	g.SetBackbufferSource("backbuffer")
	g.SetBackbufferDimensions(swapchainDim())
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}

	dev := newFakeDevice()
	if err := g.SetupAttachments(dev, swapchainView()); err != nil {
		t.Fatalf("first SetupAttachments() = %v", err)
	}
	accum := g.GetTextureResource("accum").PhysicalIndex()
	first := g.physicalImageAttachments[accum]

	if err := g.SetupAttachments(dev, swapchainView()); err != nil {
		t.Fatalf("second SetupAttachments() = %v", err)
	}
	if g.physicalImageAttachments[accum] != first {
		t.Error("persistent image recreated despite unchanged dimensions")
	}
	if first.(*fakeImage).destroyed {
		t.Error("persistent image destroyed on re-setup")
	}
}

func TestConsumeInstallPhysicalBuffers(t *testing.T) {
	g := New()

	produce := g.AddPass("produce", driver.StageComputeShader)
	produce.AddStorageOutput("feedback", BufferInfo{
		Size:       1024,
		Usage:      gputypes.BufferUsageStorage,
		Persistent: true,
	}, "")
	produce.SetImplementation(nopImpl{})

	use := g.AddPass("use", driver.StageFragmentShader)
	use.AddStorageReadOnlyInput("feedback")
	use.AddColorOutput("backbuffer", AttachmentInfo{SizeX: 1, SizeY: 1}, "")
	use.SetImplementation(nopImpl{})

	g.SetBackbufferSource("backbuffer")
	g.SetBackbufferDimensions(swapchainDim())
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}

	dev := newFakeDevice()
	if err := g.SetupAttachments(dev, swapchainView()); err != nil {
		t.Fatalf("SetupAttachments() = %v", err)
	}
	phys := g.GetBufferResource("feedback").PhysicalIndex()
	original := g.physicalBuffers[phys]

	// Snapshot, rebake, restore: the feedback buffer survives.
	bufs := g.ConsumePhysicalBuffers()
	if err := g.Bake(); err != nil {
		t.Fatalf("rebake = %v", err)
	}
	g.InstallPhysicalBuffers(bufs)
	if err := g.SetupAttachments(dev, swapchainView()); err != nil {
		t.Fatalf("SetupAttachments after rebake = %v", err)
	}
	if g.physicalBuffers[phys] != original {
		t.Error("feedback buffer not preserved across rebake")
	}
	if original.(*fakeBuffer).destroyed {
		t.Error("feedback buffer destroyed across rebake")
	}
}

func TestResetReleasesAllocations(t *testing.T) {
	g := buildChain(t)
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}
	dev := newFakeDevice()
	if err := g.SetupAttachments(dev, swapchainView()); err != nil {
		t.Fatalf("SetupAttachments() = %v", err)
	}

	g.Reset()
	if dev.liveImages() != 0 {
		t.Errorf("%d images still live after Reset", dev.liveImages())
	}
	if len(g.passes) != 0 || len(g.resources) != 0 {
		t.Error("declarations survive Reset")
	}
}

func TestOnSwapchainChangedRebakes(t *testing.T) {
	g := buildChain(t)
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}
	dev := newFakeDevice()
	if err := g.SetupAttachments(dev, swapchainView()); err != nil {
		t.Fatalf("SetupAttachments() = %v", err)
	}

	resized := &fakeView{width: 1920, height: 1080, format: gputypes.TextureFormatBGRA8Unorm}
	if err := g.OnSwapchainChanged(dev, resized); err != nil {
		t.Fatalf("OnSwapchainChanged() = %v", err)
	}

	hdr := g.GetTextureResource("hdr").PhysicalIndex()
	dim := g.physicalDimensions[hdr]
	if dim.Width != 1920 || dim.Height != 1080 {
		t.Errorf("hdr not rescaled: %dx%d", dim.Width, dim.Height)
	}
	if g.physicalAttachments[g.swapchainPhysicalIndex] != resized {
		t.Error("swapchain slot not rebound to the new view")
	}
}
