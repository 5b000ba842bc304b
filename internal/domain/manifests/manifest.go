package manifests

// Kind enum for supported manifest dialects
type Kind string

const (
	KindRequirements Kind = "requirements.txt"
	KindPyProject    Kind = "pyproject.toml"
)

// PackageRef is one dependency extracted from a manifest.
// Name is what scanners consume; RawLine keeps the original specifier
// so reports stay reproducible.
type PackageRef struct {
	Name    string `json:"name"`
	RawLine string `json:"raw_line"`
}

// ProjectManifest is the normalized view of one manifest file.
// Immutable once built by the resolver. Packages preserve declaration
// order; scanners treat them as a set.
type ProjectManifest struct {
	Kind       Kind         `json:"kind"`
	SourcePath string       `json:"source_path"`
	Missing    bool         `json:"missing"`
	Raw        string       `json:"raw,omitempty"`
	Packages   []PackageRef `json:"packages,omitempty"`
	// ParseNote carries a recoverable parse error as report text.
	// A manifest with a note still contributes zero packages, never an error.
	ParseNote string `json:"parse_note,omitempty"`
}

// PackageLines renders the extracted packages one per line, the format
// the scanner side file uses.
func (m ProjectManifest) PackageLines() []string {
	out := make([]string, 0, len(m.Packages))
	for _, p := range m.Packages {
		out = append(out, p.RawLine)
	}
	return out
}
