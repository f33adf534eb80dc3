package granite

import (
	"log/slog"
)

// Log dumps the baked plan through the configured logger at Info
// level: resources with their physical assignments, the ordered pass
// list, and the barrier sets of every physical pass. On an unbaked
// graph it logs a single warning and dumps nothing.
func (g *RenderGraph) Log() {
	if !g.baked {
		Logger().Warn("granite: Log called before Bake")
		return
	}
	log := Logger()

	for _, res := range g.resources {
		base := res.base()
		if base.physicalIndex == Unused {
			continue
		}
		switch r := res.(type) {
		case *TextureResource:
			dim := g.physicalDimensions[base.physicalIndex]
			log.Info("resource",
				"name", base.name,
				"physical", base.physicalIndex,
				"width", dim.Width,
				"height", dim.Height,
				"format", uint32(dim.Format),
				"transient", dim.Transient,
				"persistent", dim.Persistent,
				"storage", r.Storage(),
				"history", g.physicalImageHasHistory[base.physicalIndex])
		case *BufferResource:
			log.Info("resource",
				"name", base.name,
				"physical", base.physicalIndex,
				"size", r.BufferInfo().Size,
				"persistent", r.BufferInfo().Persistent)
		}
	}

	for pos, passIndex := range g.passStack {
		pass := g.passes[passIndex]
		log.Info("pass",
			"order", pos,
			"name", pass.name,
			"physicalPass", pass.physicalPass)
	}

	for i := range g.physicalPasses {
		pp := &g.physicalPasses[i]
		names := make([]string, len(pp.passes))
		for j, passIndex := range pp.passes {
			names[j] = g.passes[passIndex].name
		}
		log.Info("physical pass",
			"index", i,
			"passes", names,
			"subpasses", len(pp.renderPassDesc.Subpasses),
			"colorAttachments", pp.physicalColorAttachments,
			"depthStencil", pp.physicalDepthStencilAttachment)
		logBarriers(log, "invalidate", i, pp.invalidate)
		logBarriers(log, "flush", i, pp.flush)
	}
	logBarriers(log, "initial", Unused, g.initialBarriers)
	logBarriers(log, "initialTopOfPipe", Unused, g.initialTopOfPipeBarriers)
}

func logBarriers(log *slog.Logger, kind string, physicalPass int, list []barrier) {
	for _, b := range list {
		log.Info("barrier",
			"kind", kind,
			"physicalPass", physicalPass,
			"resource", b.resourceIndex,
			"layout", b.layout.String(),
			"access", uint32(b.access),
			"stages", uint32(b.stages),
			"history", b.history)
	}
}
