// Package config defines the format-agnostic model for a project and its
// declared actions. Loaders (see hclloader) translate concrete file formats
// into this model; nothing here depends on a parser.
package config

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Kind classifies what an action does. The set is closed; ParseKind is the
// only way in from user input.
type Kind string

const (
	KindBuild  Kind = "build"
	KindDeploy Kind = "deploy"
	KindRun    Kind = "run"
	KindTest   Kind = "test"
)

// Kinds lists every valid action kind.
var Kinds = []Kind{KindBuild, KindDeploy, KindRun, KindTest}

// ParseKind validates a user-supplied kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBuild, KindDeploy, KindRun, KindTest:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unrecognized action kind %q (expected one of build, deploy, run, test)", s)
}

// Ref names another action, e.g. "build.api".
type Ref struct {
	Kind Kind
	Name string
}

// String returns the canonical "kind.name" form.
func (r Ref) String() string {
	return string(r.Kind) + "." + r.Name
}

// ParseRef parses a "kind.name" reference.
func ParseRef(s string) (Ref, error) {
	kindStr, name, ok := strings.Cut(s, ".")
	if !ok || name == "" {
		return Ref{}, fmt.Errorf("invalid action reference %q (expected kind.name)", s)
	}
	kind, err := ParseKind(kindStr)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid action reference %q: %w", s, err)
	}
	return Ref{Kind: kind, Name: name}, nil
}

// SourceConfig describes which files make up an action's source tree.
type SourceConfig struct {
	// Path is the source root, absolute after loading.
	Path string
	// Include restricts the scan to matching paths. A non-nil empty
	// include means "no files at all".
	Include []string
	// Exclude removes matching paths from the scan.
	Exclude []string
}

// Action is one declared unit of buildable/deployable/runnable/testable
// work.
type Action struct {
	Kind        Kind
	Name        string
	// Type selects the plugin handler that processes the action,
	// e.g. "exec".
	Type        string
	Description string
	Source      SourceConfig
	DependsOn   []Ref
	// Spec is the handler-specific body, kept as a cty value so it can be
	// serialized canonically for versioning.
	Spec      cty.Value
	Variables map[string]cty.Value
	// ConfigPath is the file this action was declared in. The scanner
	// excludes it from the action's own tree and uses its directory to
	// relativize paths for hashing.
	ConfigPath string
}

// Ref returns the action's own reference.
func (a *Action) Ref() Ref {
	return Ref{Kind: a.Kind, Name: a.Name}
}

// Project is the loaded model for one project root.
type Project struct {
	Name string
	// Root is the absolute project root path.
	Root string
	// Excludes are project-root scan excludes (from .forgeignore),
	// applied when a scan is rooted at Root with no explicit include.
	Excludes []string
	Actions  []*Action
}

// Action looks up an action by reference.
func (p *Project) Action(ref Ref) (*Action, bool) {
	for _, a := range p.Actions {
		if a.Kind == ref.Kind && a.Name == ref.Name {
			return a, true
		}
	}
	return nil, false
}
