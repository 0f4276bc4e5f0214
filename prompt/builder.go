// Package prompt turns a flattened configuration document into a
// natural-language generation prompt plus the leftover parameter mapping.
//
// Build is a pure function: no I/O, no randomness, identical input yields
// identical output. Sections are rendered in a fixed, documented order and
// missing sections are simply skipped; partial configuration is valid.
package prompt

import (
	"fmt"
	"strings"
)

// SectionOrder is the fixed rendering order for the known prompt sections.
var SectionOrder = []string{
	"shot",
	"subject",
	"scene",
	"visual_details",
	"cinematography",
	"audio",
	"color_palette",
}

// Build renders the known sections of doc into a prompt string and collects
// every unknown top-level key verbatim into extraParams so model adapters
// can opt into provider-specific parameters.
func Build(doc map[string]any) (string, map[string]any) {
	var parts []string
	for _, section := range SectionOrder {
		value, ok := doc[section]
		if !ok {
			continue
		}
		if text := renderSection(section, value); text != "" {
			parts = append(parts, text)
		}
	}

	// Technical tail: palette plus shot-level film specs, matching the
	// descriptive style of the source prompts.
	if tail := renderTail(doc); tail != "" {
		parts = append(parts, tail)
	}

	extraParams := map[string]any{}
	for key, value := range doc {
		if !isKnownSection(key) {
			extraParams[key] = value
		}
	}

	return tidy(strings.Join(parts, ". ")), extraParams
}

func isKnownSection(key string) bool {
	for _, s := range SectionOrder {
		if key == s {
			return true
		}
	}
	return false
}

func renderSection(name string, value any) string {
	if s, ok := value.(string); ok {
		if name == "color_palette" {
			// Rendered in the tail together with film specs.
			return ""
		}
		return s
	}
	section, ok := value.(map[string]any)
	if !ok {
		return ""
	}

	switch name {
	case "shot":
		return joinFields(section, field{"composition", "%s"}, field{"camera_motion", "with %s"})
	case "subject":
		return joinFields(section, field{"description", "%s"}, field{"wardrobe", "wearing %s"})
	case "scene":
		return joinFields(section,
			field{"location", "in a %s"},
			field{"time_of_day", "during %s"},
			field{"environment", "%s"},
		)
	case "visual_details":
		return joinFields(section, field{"action", "%s"}, field{"props", "with %s"})
	case "cinematography":
		var parts []string
		if v, ok := stringField(section, "lighting"); ok {
			parts = append(parts, "Shot with "+v)
		}
		if v, ok := stringField(section, "tone"); ok {
			parts = append(parts, v+" tone")
		}
		return strings.Join(parts, ", ")
	case "audio":
		return renderAudio(section)
	default:
		return ""
	}
}

func renderAudio(audio map[string]any) string {
	var parts []string
	if dialogue, ok := audio["dialogue"].(map[string]any); ok {
		character, hasCharacter := stringField(dialogue, "character")
		line, hasLine := stringField(dialogue, "line")
		if hasCharacter && hasLine {
			parts = append(parts, fmt.Sprintf("The %s says: %q", character, line))
		}
	}
	if v, ok := stringField(audio, "ambient"); ok {
		parts = append(parts, "Ambient sound: "+v)
	}
	if v, ok := stringField(audio, "effects"); ok {
		parts = append(parts, "Sound effects: "+v)
	}
	return strings.Join(parts, ". ")
}

func renderTail(doc map[string]any) string {
	var parts []string
	if palette, ok := doc["color_palette"].(string); ok && palette != "" {
		parts = append(parts, "Color palette: "+palette)
	}
	if shot, ok := doc["shot"].(map[string]any); ok {
		if v, ok := stringField(shot, "frame_rate"); ok {
			parts = append(parts, v)
		}
		if v, ok := stringField(shot, "film_grain"); ok {
			parts = append(parts, v+" film grain")
		}
	}
	return strings.Join(parts, ". ")
}

type field struct {
	key    string
	format string
}

func joinFields(section map[string]any, fields ...field) string {
	var parts []string
	for _, f := range fields {
		if v, ok := stringField(section, f.key); ok {
			parts = append(parts, fmt.Sprintf(f.format, v))
		}
	}
	return strings.Join(parts, " ")
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func tidy(s string) string {
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}
