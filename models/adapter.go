// Package models defines the model-adapter seam of the generation pipeline.
//
// An Adapter translates a flattened configuration document into the request
// understood by one remote model family. Adapters are stateless, created at
// process start and registered in a Registry; new model families are added
// by registering another adapter, never by touching the pipeline.
package models

import (
	"github.com/skyreel/vidgen/genconfig"
	"github.com/skyreel/vidgen/prompt"
)

// Kind classifies what a model family produces.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// FallbackExtension is the artifact extension used when neither the content
// type nor the source URL reveals one.
func (k Kind) FallbackExtension() string {
	switch k {
	case KindVideo:
		return ".mp4"
	case KindImage:
		return ".png"
	case KindText:
		return ".txt"
	default:
		return ".bin"
	}
}

// Adapter is implemented once per supported model family.
type Adapter interface {
	// ModelType returns the unique local identifier (e.g. "veo3").
	ModelType() string

	// RemoteModelID returns the opaque identifier sent to the remote service.
	RemoteModelID() string

	// Kind reports what the model produces.
	Kind() Kind

	// BuildRequest turns a flattened configuration into the prompt and the
	// model-specific parameter mapping.
	BuildRequest(doc genconfig.Document) (string, map[string]any)
}

// Streamer is implemented by adapters whose remote model emits incremental
// output.
type Streamer interface {
	SupportsStreaming() bool
}

// ModelAdapter is the catalog-driven Adapter implementation shared by the
// built-in model families.
type ModelAdapter struct {
	info ModelInfo
}

// NewAdapter creates an adapter from a catalog entry.
func NewAdapter(info ModelInfo) *ModelAdapter {
	return &ModelAdapter{info: info}
}

func (a *ModelAdapter) ModelType() string     { return a.info.ModelType }
func (a *ModelAdapter) RemoteModelID() string { return a.info.RemoteID }
func (a *ModelAdapter) Kind() Kind            { return a.info.Kind }

// SupportsStreaming reports whether the remote model emits incremental output.
func (a *ModelAdapter) SupportsStreaming() bool { return a.info.Streaming }

// BuildRequest delegates to the prompt builder, then layers the catalog
// defaults under any "generation_params" the configuration carried through.
func (a *ModelAdapter) BuildRequest(doc genconfig.Document) (string, map[string]any) {
	text, extra := prompt.Build(doc)

	params := make(map[string]any, len(a.info.DefaultParams))
	for k, v := range a.info.DefaultParams {
		params[k] = v
	}
	if overrides, ok := extra["generation_params"].(map[string]any); ok {
		for k, v := range overrides {
			params[k] = v
		}
	}
	if negative, ok := extra["negative_prompt"].(string); ok && a.info.Kind == KindImage {
		params["negative_prompt"] = negative
	}
	return text, params
}

var (
	_ Adapter  = (*ModelAdapter)(nil)
	_ Streamer = (*ModelAdapter)(nil)
)
