// Package hclloader reads a project's .hcl declarations into the config
// model. It discovers every .hcl file under the project root, decodes the
// project and action blocks, and resolves source paths and references.
package hclloader

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/forgegrid/internal/config"
	"github.com/vk/forgegrid/internal/ctxlog"
)

// ignoreFileName holds project-wide scan excludes, one pattern per line.
const ignoreFileName = ".forgeignore"

// fileRoot decodes all recognized top-level blocks from any file.
type fileRoot struct {
	Project *projectBlock  `hcl:"project,block"`
	Builds  []*actionBlock `hcl:"build,block"`
	Deploys []*actionBlock `hcl:"deploy,block"`
	Runs    []*actionBlock `hcl:"run,block"`
	Tests   []*actionBlock `hcl:"test,block"`
}

type projectBlock struct {
	Name string `hcl:"name,label"`
}

type actionBlock struct {
	Name        string       `hcl:"name,label"`
	Type        string       `hcl:"type"`
	Description string       `hcl:"description,optional"`
	DependsOn   []string     `hcl:"depends_on,optional"`
	Source      *sourceBlock `hcl:"source,block"`
	Spec        *attrsBlock  `hcl:"spec,block"`
	Variables   *attrsBlock  `hcl:"variables,block"`
}

type sourceBlock struct {
	Path string `hcl:"path,optional"`
	// Include is a pointer so an absent attribute and an explicit empty
	// list stay distinguishable; the latter pins the tree to no files.
	Include *[]string `hcl:"include,optional"`
	Exclude []string  `hcl:"exclude,optional"`
}

// attrsBlock captures a free-form block whose attribute set is defined by
// the action's handler, not by us.
type attrsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// Load parses every .hcl file under root into a Project. The returned
// project has an absolute root and absolute source paths.
func Load(ctx context.Context, root string) (*config.Project, error) {
	logger := ctxlog.FromContext(ctx)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root %s: %w", root, err)
	}

	files, err := findHCLFiles(absRoot)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered project files.", "root", absRoot, "count", len(files))
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found under %s", absRoot)
	}

	project := &config.Project{
		Name: filepath.Base(absRoot),
		Root: absRoot,
	}

	excludes, err := readIgnoreFile(filepath.Join(absRoot, ignoreFileName))
	if err != nil {
		return nil, err
	}
	project.Excludes = excludes

	parser := hclparse.NewParser()
	seen := make(map[config.Ref]string)
	var namedBy string

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %w", file, diags)
		}

		var decoded fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &decoded); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode %s: %w", file, diags)
		}

		if decoded.Project != nil {
			if namedBy != "" {
				return nil, fmt.Errorf("project declared twice, in %s and %s", namedBy, file)
			}
			project.Name = decoded.Project.Name
			namedBy = file
		}

		for _, group := range []struct {
			kind   config.Kind
			blocks []*actionBlock
		}{
			{config.KindBuild, decoded.Builds},
			{config.KindDeploy, decoded.Deploys},
			{config.KindRun, decoded.Runs},
			{config.KindTest, decoded.Tests},
		} {
			kind, blocks := group.kind, group.blocks
			for _, block := range blocks {
				action, err := translateAction(kind, block, file)
				if err != nil {
					return nil, err
				}
				if prev, dup := seen[action.Ref()]; dup {
					return nil, fmt.Errorf("%s declared twice, in %s and %s", action.Ref(), prev, file)
				}
				seen[action.Ref()] = file
				project.Actions = append(project.Actions, action)
			}
		}
	}

	logger.Debug("Project loaded.", "name", project.Name, "actions", len(project.Actions))
	return project, nil
}

// translateAction converts one decoded block into the config model,
// resolving its source path against the declaring file's directory.
func translateAction(kind config.Kind, block *actionBlock, file string) (*config.Action, error) {
	ref := config.Ref{Kind: kind, Name: block.Name}
	if block.Type == "" {
		return nil, fmt.Errorf("%s in %s: type must not be empty", ref, file)
	}

	action := &config.Action{
		Kind:        kind,
		Name:        block.Name,
		Type:        block.Type,
		Description: block.Description,
		ConfigPath:  file,
	}

	for _, dep := range block.DependsOn {
		depRef, err := config.ParseRef(dep)
		if err != nil {
			return nil, fmt.Errorf("%s in %s: %w", ref, file, err)
		}
		if depRef == ref {
			return nil, fmt.Errorf("%s in %s: depends on itself", ref, file)
		}
		action.DependsOn = append(action.DependsOn, depRef)
	}

	configDir := filepath.Dir(file)
	action.Source.Path = configDir
	if block.Source != nil {
		if block.Source.Path != "" {
			p := block.Source.Path
			if !filepath.IsAbs(p) {
				p = filepath.Join(configDir, p)
			}
			action.Source.Path = filepath.Clean(p)
		}
		if block.Source.Include != nil {
			include := *block.Source.Include
			if include == nil {
				include = []string{}
			}
			action.Source.Include = include
		}
		action.Source.Exclude = block.Source.Exclude
	}

	spec, err := decodeAttrs(block.Spec)
	if err != nil {
		return nil, fmt.Errorf("%s in %s: spec: %w", ref, file, err)
	}
	if spec != nil {
		action.Spec = cty.ObjectVal(spec)
	}

	vars, err := decodeAttrs(block.Variables)
	if err != nil {
		return nil, fmt.Errorf("%s in %s: variables: %w", ref, file, err)
	}
	action.Variables = vars

	return action, nil
}

// decodeAttrs evaluates a free-form block's attributes to constant values.
// The attribute set belongs to the handler, so nothing is validated here
// beyond the values being literal.
func decodeAttrs(block *attrsBlock) (map[string]cty.Value, error) {
	if block == nil || block.Body == nil {
		return nil, nil
	}
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	values := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %w", name, diags)
		}
		values[name] = val
	}
	return values, nil
}

// findHCLFiles walks the root and returns every .hcl file, skipping
// version-control metadata.
func findHCLFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".hcl" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// readIgnoreFile parses a .forgeignore file into exclude patterns. A
// missing file is not an error.
func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return patterns, nil
}
