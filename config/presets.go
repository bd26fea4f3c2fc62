package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/feichai0017/docformat/internal/models"
)

// Presets maps a preset name to its formatting profile.
type Presets map[string]models.FormatProfile

type presetsFile struct {
	Presets Presets `yaml:"presets"`
}

// BuiltinPresets are always available, and a presets file may override them.
func BuiltinPresets() Presets {
	def := models.DefaultProfile()
	return Presets{
		"default": def,
		"official": {
			Font:                   "宋体",
			FontSizeHalfPoints:     32,
			LineSpacingMultiplier:  1.5,
			ParagraphSpacingPoints: 0,
			FirstLineIndentChars:   2,
		},
		"compact": {
			Font:                   "黑体",
			FontSizeHalfPoints:     21,
			LineSpacingMultiplier:  1.0,
			ParagraphSpacingPoints: 6,
			FirstLineIndentChars:   2,
		},
	}
}

// LoadPresets merges the presets in path over the builtin set. An empty path
// returns the builtin presets only.
func LoadPresets(path string) (Presets, error) {
	presets := BuiltinPresets()
	if path == "" {
		return presets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}
	var file presetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets file: %w", err)
	}
	for name, p := range file.Presets {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		presets[name] = p
	}
	return presets, nil
}

// Names returns the preset names in sorted order.
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named preset.
func (p Presets) Lookup(name string) (models.FormatProfile, error) {
	profile, ok := p[name]
	if !ok {
		return models.FormatProfile{}, fmt.Errorf("unknown preset %q", name)
	}
	return profile, nil
}
