package manifests

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	domain "github.com/bryanwahyu/auditron-ci/internal/domain/manifests"
)

// Resolver discovers dependency manifests in a project root and normalizes
// each into a flat package list usable as scanner input.
type Resolver struct{}

func NewResolver() *Resolver { return &Resolver{} }

// Resolve always returns two entries in fixed priority order:
// requirements.txt first, then pyproject.toml. A missing file yields an
// entry with Missing set, never an error; a malformed pyproject yields an
// entry whose ParseNote carries the error as report text.
func (Resolver) Resolve(root string) []domain.ProjectManifest {
	return []domain.ProjectManifest{
		resolveRequirements(root),
		resolvePyProject(root),
	}
}

func resolveRequirements(root string) domain.ProjectManifest {
	path := filepath.Join(root, "requirements.txt")
	m := domain.ProjectManifest{Kind: domain.KindRequirements, SourcePath: path}

	data, err := os.ReadFile(path)
	if err != nil {
		m.Missing = true
		return m
	}
	m.Raw = string(data)

	// Lines pass through unmodified; downstream scanners validate specifiers.
	for _, line := range strings.Split(m.Raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		m.Packages = append(m.Packages, domain.PackageRef{
			Name:    specifierName(trimmed),
			RawLine: trimmed,
		})
	}
	return m
}

func resolvePyProject(root string) domain.ProjectManifest {
	path := filepath.Join(root, "pyproject.toml")
	m := domain.ProjectManifest{Kind: domain.KindPyProject, SourcePath: path}

	data, err := os.ReadFile(path)
	if err != nil {
		m.Missing = true
		return m
	}
	m.Raw = string(data)

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		m.ParseNote = fmt.Sprintf("pyproject.toml could not be parsed: %v", err)
		return m
	}

	// Three schemas tried in order; extraction stops at the first that
	// yields results.
	if pkgs := pep621Dependencies(doc); len(pkgs) > 0 {
		m.Packages = pkgs
		return m
	}
	if pkgs := poetryDependencies(doc); len(pkgs) > 0 {
		m.Packages = pkgs
		return m
	}
	m.Packages = tableDependencies(doc)
	return m
}

// pep621Dependencies reads the [project] dependencies list.
func pep621Dependencies(doc map[string]any) []domain.PackageRef {
	project, ok := doc["project"].(map[string]any)
	if !ok {
		return nil
	}
	deps, ok := project["dependencies"].([]any)
	if !ok {
		return nil
	}
	var out []domain.PackageRef
	for _, d := range deps {
		s, ok := d.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		s = strings.TrimSpace(s)
		out = append(out, domain.PackageRef{Name: specifierName(s), RawLine: s})
	}
	return out
}

// poetryDependencies reads the [tool.poetry.dependencies] table, filtering
// the implicit python runtime entry.
func poetryDependencies(doc map[string]any) []domain.PackageRef {
	tool, ok := doc["tool"].(map[string]any)
	if !ok {
		return nil
	}
	poetry, ok := tool["poetry"].(map[string]any)
	if !ok {
		return nil
	}
	deps, ok := poetry["dependencies"].(map[string]any)
	if !ok {
		return nil
	}
	return tableRefs(deps, true)
}

// tableDependencies reads a top-level [dependencies] table.
func tableDependencies(doc map[string]any) []domain.PackageRef {
	deps, ok := doc["dependencies"].(map[string]any)
	if !ok {
		return nil
	}
	return tableRefs(deps, false)
}

// tableRefs turns dependency-table keys into refs. TOML tables carry no
// declaration order, so keys are sorted to keep reports reproducible.
func tableRefs(deps map[string]any, dropPython bool) []domain.PackageRef {
	keys := make([]string, 0, len(deps))
	for k := range deps {
		if dropPython && strings.EqualFold(k, "python") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []domain.PackageRef
	for _, k := range keys {
		out = append(out, domain.PackageRef{Name: k, RawLine: k})
	}
	return out
}

// specifierName cuts a PEP 508 specifier down to the bare package name.
func specifierName(spec string) string {
	if i := strings.IndexAny(spec, "=<>!~;[ @"); i >= 0 {
		return strings.TrimSpace(spec[:i])
	}
	return spec
}
