package models

// ModelInfo describes one supported model family.
type ModelInfo struct {
	ModelType     string         `json:"model_type"`
	RemoteID      string         `json:"remote_id"`
	DisplayName   string         `json:"display_name"`
	Kind          Kind           `json:"kind"`
	Streaming     bool           `json:"streaming"`
	DefaultParams map[string]any `json:"default_params,omitempty"`
}

// Catalog is the built-in model table.
var Catalog = []ModelInfo{
	{
		ModelType:   "veo3",
		RemoteID:    "google/veo-3",
		DisplayName: "Google Veo 3",
		Kind:        KindVideo,
		DefaultParams: map[string]any{
			"aspect_ratio": "16:9",
			"resolution":   "1080p",
		},
	},
	{
		ModelType:   "flux",
		RemoteID:    "black-forest-labs/flux-schnell",
		DisplayName: "FLUX Schnell",
		Kind:        KindImage,
		DefaultParams: map[string]any{
			"aspect_ratio": "1:1",
			"num_outputs":  1,
		},
	},
	{
		ModelType:   "llama",
		RemoteID:    "meta/meta-llama-3-8b-instruct",
		DisplayName: "Llama 3 8B Instruct",
		Kind:        KindText,
		Streaming:   true,
		DefaultParams: map[string]any{
			"max_tokens":  512,
			"temperature": 0.7,
		},
	},
}

// CatalogInfo returns the catalog entry for a model type, or nil if unknown.
func CatalogInfo(modelType string) *ModelInfo {
	for i := range Catalog {
		if Catalog[i].ModelType == modelType {
			return &Catalog[i]
		}
	}
	return nil
}

// DefaultRegistry returns a Registry populated with every catalog entry.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	for _, info := range Catalog {
		// The catalog has no duplicate types; a failure here is a bug.
		if err := reg.Register(NewAdapter(info)); err != nil {
			panic(err)
		}
	}
	return reg
}
