package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vk/forgegrid/internal/config"
	"github.com/vk/forgegrid/internal/ctxlog"
	"github.com/vk/forgegrid/internal/executor"
	"github.com/vk/forgegrid/internal/handlers"
	"github.com/vk/forgegrid/internal/hclloader"
	"github.com/vk/forgegrid/internal/task"
	"github.com/vk/forgegrid/internal/treecache"
	"github.com/vk/forgegrid/internal/vcs"
	"github.com/vk/forgegrid/internal/version"
)

// Run loads the project, builds the task graph for the requested actions
// and executes it.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	project, err := hclloader.Load(ctx, a.config.ProjectPath)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}
	a.logger.Info("Project loaded.", "name", project.Name, "actions", len(project.Actions))

	registry := handlers.New()
	for _, mod := range a.modules {
		mod.Register(registry)
	}

	backend := a.newBackend(project.Root)
	scanner := vcs.NewHandler(backend, treecache.New(), project.Root, project.Excludes)
	if info, err := scanner.GetPathInfo(ctx, project.Root); err == nil && info.CommitHash != "" {
		a.logger.Info("Project revision.", "branch", info.Branch, "commit", info.CommitHash)
	}
	calculator := version.NewCalculator(scanner)

	factory := task.NewFactory(project, registry, calculator, task.Options{
		Force:            a.config.Force,
		ForceAll:         a.config.ForceAll,
		SkipDependencies: a.config.SkipDependencies,
	})

	var roots []executor.Task
	for _, ref := range a.config.Refs {
		t, err := factory.Process(ref)
		if err != nil {
			return err
		}
		roots = append(roots, t)
	}
	if len(roots) == 0 {
		a.logger.Warn("No actions requested, nothing to do.")
		return nil
	}

	a.planScanRoots(ctx, scanner, project)

	results, err := executor.Run(ctx, roots, executor.Options{
		StopOnFailure: a.config.StopOnFailure,
	})
	if err != nil {
		return err
	}

	a.summarize(results)
	if failed := results.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d task(s) failed", len(failed))
	}
	return nil
}

// newBackend picks the version-control backend: git when the project
// lives inside a repository, a plain filesystem walker otherwise.
func (a *App) newBackend(projectRoot string) vcs.Backend {
	if insideGitRepo(projectRoot) {
		a.logger.Debug("Using git backend.", "root", projectRoot)
		return vcs.NewGitBackend(filepath.Join(projectRoot, ".forge", "sources"))
	}
	a.logger.Debug("Using local filesystem backend.", "root", projectRoot)
	return vcs.NewLocalBackend(projectRoot)
}

func insideGitRepo(path string) bool {
	for dir := path; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return true
		}
		if dir == filepath.Dir(dir) {
			return false
		}
	}
}

// planScanRoots logs the minimal set of directories this run will touch,
// collapsing the source paths of the requested actions and their
// transitive dependencies per repository. Best effort; scanning proceeds
// per action regardless.
func (a *App) planScanRoots(ctx context.Context, scanner *vcs.Handler, project *config.Project) {
	seen := make(map[config.Ref]struct{})
	pathSet := make(map[string]struct{})

	var visit func(ref config.Ref)
	visit = func(ref config.Ref) {
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		action, ok := project.Action(ref)
		if !ok {
			return
		}
		if action.Source.Path != "" {
			pathSet[action.Source.Path] = struct{}{}
		}
		for _, dep := range action.DependsOn {
			visit(dep)
		}
	}
	for _, ref := range a.config.Refs {
		visit(ref)
	}

	paths := make([]string, 0, len(pathSet))
	for p := range pathSet {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	roots, err := scanner.GetMinimalRoots(ctx, paths)
	if err != nil {
		a.logger.Debug("Scan root planning failed.", "error", err)
		return
	}
	collapsed := make(map[string]struct{}, len(roots))
	for _, root := range roots {
		collapsed[root] = struct{}{}
	}
	a.logger.Debug("Scan roots planned.", "paths", len(paths), "roots", len(collapsed))
}

// summarize prints one line per task outcome in a stable order.
func (a *App) summarize(results *executor.Results) {
	all := results.All()
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		res := all[key]
		switch {
		case res.Aborted:
			fmt.Fprintf(a.outW, "  %-30s aborted\n", res.Key)
		case res.Error != nil:
			fmt.Fprintf(a.outW, "  %-30s failed: %v\n", res.Key, res.Error)
		case res.Skipped:
			fmt.Fprintf(a.outW, "  %-30s up to date %s\n", res.Key, res.Version)
		default:
			fmt.Fprintf(a.outW, "  %-30s done %s (%s)\n", res.Key, res.Version,
				res.CompletedAt.Sub(res.StartedAt).Round(time.Millisecond))
		}
	}
}
