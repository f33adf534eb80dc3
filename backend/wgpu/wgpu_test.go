package wgpu

import (
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"

	"github.com/KonajuGames/granite/driver"
)

// compileWGSL runs a source through naga, skipping on known naga
// limitations so the test tracks shader validity rather than compiler
// completeness.
func compileWGSL(t *testing.T, name, source string) {
	t.Helper()
	if source == "" {
		t.Fatalf("%s shader source is empty", name)
	}
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "not yet implemented") || strings.Contains(errStr, "not supported") {
			t.Skipf("naga feature not yet implemented: %v", err)
		}
		t.Fatalf("compile %s: %v", name, err)
	}
	if len(spirvBytes) == 0 {
		t.Fatalf("compile %s: empty SPIR-V output", name)
	}
}

func TestQuadVertexShaderCompiles(t *testing.T) {
	compileWGSL(t, builtinQuadVertexName, quadVertexWGSL)
}

func TestBlitFragmentShaderCompiles(t *testing.T) {
	compileWGSL(t, builtinBlitFragmentName, blitFragmentWGSL)
}

func TestLayoutToUsage(t *testing.T) {
	tests := []struct {
		name   string
		layout driver.Layout
		want   gputypes.TextureUsage
	}{
		{"color attachment", driver.LayoutColorAttachmentOptimal, gputypes.TextureUsageRenderAttachment},
		{"depth attachment", driver.LayoutDepthStencilAttachmentOptimal, gputypes.TextureUsageRenderAttachment},
		{"depth read-only", driver.LayoutDepthStencilReadOnlyOptimal, gputypes.TextureUsageRenderAttachment},
		{"present", driver.LayoutPresentSrc, gputypes.TextureUsageRenderAttachment},
		{"sampled", driver.LayoutShaderReadOnlyOptimal, gputypes.TextureUsageTextureBinding},
		{"storage", driver.LayoutGeneral, gputypes.TextureUsageStorageBinding},
		{"transfer src", driver.LayoutTransferSrcOptimal, gputypes.TextureUsageCopySrc},
		{"transfer dst", driver.LayoutTransferDstOptimal, gputypes.TextureUsageCopyDst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := layoutToUsage(tt.layout); got != tt.want {
				t.Errorf("layoutToUsage(%v) = %v, want %v", tt.layout, got, tt.want)
			}
		})
	}
}

func TestProgramKeyDefinesOrderIndependent(t *testing.T) {
	a := newProgramKey("v", "f", []driver.ShaderDefine{
		{Name: "MSAA", Value: 4},
		{Name: "HDR", Value: 1},
	})
	b := newProgramKey("v", "f", []driver.ShaderDefine{
		{Name: "HDR", Value: 1},
		{Name: "MSAA", Value: 4},
	})
	if a != b {
		t.Errorf("define order changed the key: %+v != %+v", a, b)
	}

	c := newProgramKey("v", "f", []driver.ShaderDefine{{Name: "HDR", Value: 0}})
	if a == c {
		t.Error("different defines collapsed to one key")
	}
}

func TestShaderRegistryBuiltins(t *testing.T) {
	r := newShaderRegistry()
	for _, name := range []string{builtinQuadVertexName, builtinBlitFragmentName} {
		if _, ok := r.source(name); !ok {
			t.Errorf("builtin shader %q not registered", name)
		}
	}
	r.register("custom", "@fragment fn fs_main() {}")
	if src, ok := r.source("custom"); !ok || src == "" {
		t.Error("registered shader not retrievable")
	}
}

func TestNewDeviceRejectsNil(t *testing.T) {
	if _, err := NewDevice(nil, nil); err == nil {
		t.Error("NewDevice(nil, nil) succeeded, want error")
	}
}

func TestBindingLayoutEntriesAppendsSampler(t *testing.T) {
	bindings := []binding{
		{binding: 0, kind: bindTexture, sampler: driver.SamplerLinearClamp},
		{binding: 1, kind: bindUniformBuffer},
	}
	entries, samplerBinding := bindingLayoutEntries(bindings, gputypes.ShaderStageFragment)
	if samplerBinding != 2 {
		t.Errorf("sampler binding = %d, want 2", samplerBinding)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d layout entries, want 3 (texture, buffer, sampler)", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Sampler == nil {
		t.Error("trailing entry is not a sampler")
	}
}
