package cache

import (
	bgp "github.com/Carmen-Shannon/oxy-gpu/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/pipeline"
)

const (
	// PipelineLifetimeFrames is how many frames an unused pipeline survives.
	PipelineLifetimeFrames = 50
	// BindGroupLifetimeFrames is how many frames an unused bind group set survives.
	BindGroupLifetimeFrames = 100
)

// PipelineCache caches render and compute pipelines by their structured key.
type PipelineCache = AgeCache[pipeline.Key, pipeline.Pipeline]

// BindGroupCache caches the bind groups built for one set of attachments against one shader's layouts.
type BindGroupCache = AgeCache[bgp.Key, bgp.BindGroups]

// NewPipelineCache creates a PipelineCache that releases pipelines unused for PipelineLifetimeFrames frames.
func NewPipelineCache() PipelineCache {
	return NewAgeCache(
		"pipeline cache",
		PipelineLifetimeFrames,
		WithOnEvict(func(_ pipeline.Key, p pipeline.Pipeline) { p.Release() }),
	)
}

// NewBindGroupCache creates a BindGroupCache that releases bind groups unused for BindGroupLifetimeFrames
// frames.
func NewBindGroupCache() BindGroupCache {
	return NewAgeCache(
		"bind group cache",
		BindGroupLifetimeFrames,
		WithOnEvict(func(_ bgp.Key, g bgp.BindGroups) { g.Release() }),
	)
}
