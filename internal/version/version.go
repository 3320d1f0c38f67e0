// Package version derives the deterministic identity of an action's
// current buildable state: its normalized config, its source tree hash and
// the versions of everything it depends on.
package version

import (
	"context"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/forgegrid/internal/config"
	"github.com/vk/forgegrid/internal/hashing"
	"github.com/vk/forgegrid/internal/vcs"
)

// ActionVersion is the full version record for one action. VersionString
// is the externally visible identity.
type ActionVersion struct {
	VersionString      string
	DependencyVersions map[string]string
	Files              []string
	ContentHash        string
	ConfigVersion      string
	SourceVersion      string
}

// Calculator combines tree versions with action configs and dependency
// versions. It carries no state of its own beyond the scanner.
type Calculator struct {
	scanner *vcs.Handler
}

// NewCalculator returns a Calculator scanning through the given handler.
func NewCalculator(scanner *vcs.Handler) *Calculator {
	return &Calculator{scanner: scanner}
}

// ActionVersion computes the action's version record. It is a pure
// function of the normalized config, the tree content hash and the
// name-sorted dependency version strings; identical inputs always yield an
// identical VersionString. Changing any dependency's version changes every
// transitive dependent's version.
func (c *Calculator) ActionVersion(ctx context.Context, action *config.Action, dependencyVersions map[string]string, force bool) (*ActionVersion, error) {
	tree, err := c.scanner.GetTreeVersion(ctx, ScanConfigFor(action), force)
	if err != nil {
		return nil, fmt.Errorf("computing tree version for %s: %w", action.Ref(), err)
	}

	payload, err := canonicalConfig(action)
	if err != nil {
		return nil, fmt.Errorf("serializing config for %s: %w", action.Ref(), err)
	}

	names := make([]string, 0, len(dependencyVersions))
	for name := range dependencyVersions {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+2)
	parts = append(parts, string(payload), tree.ContentHash)
	for _, name := range names {
		parts = append(parts, dependencyVersions[name])
	}

	return &ActionVersion{
		VersionString:      hashing.Version(parts...),
		DependencyVersions: dependencyVersions,
		Files:              tree.Files,
		ContentHash:        tree.ContentHash,
		ConfigVersion:      hashing.Version(string(payload)),
		SourceVersion:      tree.ContentHash,
	}, nil
}

// ScanConfigFor maps an action's source declaration to a scan config.
func ScanConfigFor(action *config.Action) vcs.ScanConfig {
	return vcs.ScanConfig{
		Path:       action.Source.Path,
		Include:    action.Source.Include,
		Exclude:    action.Source.Exclude,
		ConfigPath: action.ConfigPath,
	}
}

// canonicalConfig serializes the build-relevant subset of the action
// config deterministically. Environment-specific fields (source paths,
// config file locations) stay out so they never affect the hash.
func canonicalConfig(action *config.Action) ([]byte, error) {
	attrs := map[string]cty.Value{
		"kind": cty.StringVal(string(action.Kind)),
		"name": cty.StringVal(action.Name),
		"type": cty.StringVal(action.Type),
	}
	if action.Spec != cty.NilVal && !action.Spec.IsNull() {
		attrs["spec"] = action.Spec
	}
	if len(action.Variables) > 0 {
		attrs["variables"] = cty.ObjectVal(action.Variables)
	}

	val := cty.ObjectVal(attrs)
	// ctyjson emits object attributes in sorted order, so the payload is
	// canonical.
	return ctyjson.Marshal(val, val.Type())
}
