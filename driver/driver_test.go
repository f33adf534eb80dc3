package driver

import "testing"

func TestLayoutString(t *testing.T) {
	tests := []struct {
		layout Layout
		want   string
	}{
		{LayoutUndefined, "Undefined"},
		{LayoutGeneral, "General"},
		{LayoutColorAttachmentOptimal, "ColorAttachmentOptimal"},
		{LayoutDepthStencilAttachmentOptimal, "DepthStencilAttachmentOptimal"},
		{LayoutDepthStencilReadOnlyOptimal, "DepthStencilReadOnlyOptimal"},
		{LayoutShaderReadOnlyOptimal, "ShaderReadOnlyOptimal"},
		{LayoutTransferSrcOptimal, "TransferSrcOptimal"},
		{LayoutTransferDstOptimal, "TransferDstOptimal"},
		{LayoutPresentSrc, "PresentSrc"},
		{Layout(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.layout.String(); got != tt.want {
			t.Errorf("Layout(%d).String() = %q, want %q", tt.layout, got, tt.want)
		}
	}
}

func TestStageMasksAreDisjoint(t *testing.T) {
	stages := []Stage{
		StageTopOfPipe, StageVertexShader, StageFragmentShader,
		StageEarlyFragmentTests, StageLateFragmentTests,
		StageColorAttachmentOutput, StageComputeShader,
		StageTransfer, StageBottomOfPipe,
	}
	var seen Stage
	for _, s := range stages {
		if seen&s != 0 {
			t.Errorf("stage bit %b overlaps earlier stages", s)
		}
		seen |= s
	}
	if StageAllGraphics&StageComputeShader != 0 {
		t.Error("StageAllGraphics includes compute")
	}
	if StageAllGraphics&StageColorAttachmentOutput == 0 {
		t.Error("StageAllGraphics misses color output")
	}
}
