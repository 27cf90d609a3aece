package splitter

import (
	"fmt"
	"sort"

	"ragpipe/internal/domain"
)

const PresetDefault = "default"

var presets = map[string][]string{
	PresetDefault: {"\n\n", "\n", " ", ""},
	"markdown": {
		"\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"```\n\n",
		"\n\n***\n\n", "\n\n---\n\n", "\n\n___\n\n",
		"\n\n", "\n", " ", "",
	},
	"go": {
		"\nfunc ", "\nvar ", "\nconst ", "\ntype ",
		"\nif ", "\nfor ", "\nswitch ", "\ncase ",
		"\n\n", "\n", " ", "",
	},
}

// DefaultSeparators splits on paragraphs, then lines, then words, then characters.
func DefaultSeparators() []string {
	seps, _ := Preset(PresetDefault)
	return seps
}

// Preset returns a copy of the named separator list. An empty name selects
// the default preset.
func Preset(name string) ([]string, error) {
	if name == "" {
		name = PresetDefault
	}
	seps, ok := presets[name]
	if !ok {
		return nil, &domain.ConfigurationError{
			Field:  "preset",
			Reason: fmt.Sprintf("unknown separator preset %q (available: %v)", name, PresetNames()),
		}
	}
	out := make([]string, len(seps))
	copy(out, seps)
	return out, nil
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
