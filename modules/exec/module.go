// Package exec provides the built-in "exec" action type: actions whose
// spec declares shell commands to perform them and, optionally, to probe
// whether they are already done.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/forgegrid/internal/config"
	"github.com/vk/forgegrid/internal/ctxlog"
	"github.com/vk/forgegrid/internal/handlers"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

var _ handlers.Module = (*Module)(nil)

// spec is the decoded shape of an exec action's spec block.
type spec struct {
	// Command is run by Process through the shell.
	Command string
	// StatusCommand, when set, is run by GetStatus; exit 0 means the
	// action is already satisfied.
	StatusCommand string
	// Workdir overrides the source path as working directory.
	Workdir string
}

// Register registers the exec handler for every action kind.
func (m *Module) Register(r *handlers.Registry) {
	h := &handlers.Handler{
		GetStatus: getStatus,
		Process:   process,
	}
	for _, kind := range config.Kinds {
		r.Register(kind, "exec", h)
	}
}

func getStatus(ctx context.Context, req *handlers.Request) (*handlers.Status, error) {
	sp, err := decodeSpec(req.Action)
	if err != nil {
		return nil, err
	}
	if sp.StatusCommand == "" {
		// No probe declared; the state is indeterminate.
		return nil, nil
	}

	out, runErr := run(ctx, req, sp, sp.StatusCommand)
	if runErr != nil {
		var exitErr *osexec.ExitError
		if errors.As(runErr, &exitErr) {
			return &handlers.Status{
				State:  handlers.StateNotReady,
				Detail: fmt.Sprintf("status command exited %d", exitErr.ExitCode()),
			}, nil
		}
		return nil, runErr
	}
	return &handlers.Status{
		State:   handlers.StateReady,
		Detail:  "status command succeeded",
		Outputs: map[string]string{"stdout": strings.TrimSpace(out)},
	}, nil
}

func process(ctx context.Context, req *handlers.Request) (*handlers.Status, error) {
	sp, err := decodeSpec(req.Action)
	if err != nil {
		return nil, err
	}
	if sp.Command == "" {
		return nil, fmt.Errorf("%s: spec has no command", req.Action.Ref())
	}

	out, err := run(ctx, req, sp, sp.Command)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Action.Ref(), err)
	}
	return &handlers.Status{
		State:   handlers.StateReady,
		Outputs: map[string]string{"stdout": strings.TrimSpace(out)},
	}, nil
}

// run executes one shell command in the action's working directory with
// the action's variables and dependency outputs exported.
func run(ctx context.Context, req *handlers.Request, sp *spec, command string) (string, error) {
	logger := ctxlog.FromContext(ctx).With("action", req.Action.Ref().String())

	dir := req.Action.Source.Path
	if sp.Workdir != "" {
		if filepath.IsAbs(sp.Workdir) {
			dir = sp.Workdir
		} else {
			dir = filepath.Join(dir, sp.Workdir)
		}
	}

	cmd := osexec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = environment(req)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	logger.Debug("Running command.", "command", command, "dir", dir)
	err := cmd.Run()
	out := buf.String()
	if err != nil {
		if out != "" {
			return out, fmt.Errorf("command failed: %w\n%s", err, strings.TrimSpace(out))
		}
		return out, fmt.Errorf("command failed: %w", err)
	}
	return out, nil
}

// environment builds the child process environment: the parent's, the
// action's variables, the computed version, and each dependency's stdout
// under FORGE_OUTPUT_<KIND>_<NAME>.
func environment(req *handlers.Request) []string {
	env := os.Environ()
	for name, val := range req.Action.Variables {
		s, err := stringify(val)
		if err != nil {
			continue
		}
		env = append(env, name+"="+s)
	}
	if req.Version != "" {
		env = append(env, "FORGE_VERSION="+req.Version)
	}
	for key, status := range req.DependencyStatuses {
		if status == nil || status.Outputs == nil {
			continue
		}
		if stdout, ok := status.Outputs["stdout"]; ok {
			env = append(env, "FORGE_OUTPUT_"+envKey(key)+"="+stdout)
		}
	}
	return env
}

func envKey(ref string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(ref))
}

// decodeSpec extracts the exec attributes from the action's free-form
// spec value. Unknown attributes are left for the shell-visible
// variables, not rejected.
func decodeSpec(action *config.Action) (*spec, error) {
	sp := &spec{}
	if action.Spec == cty.NilVal || action.Spec.IsNull() {
		return sp, nil
	}
	if !action.Spec.Type().IsObjectType() {
		return nil, fmt.Errorf("%s: spec must be a block of attributes", action.Ref())
	}

	get := func(name string) (string, error) {
		if !action.Spec.Type().HasAttribute(name) {
			return "", nil
		}
		val := action.Spec.GetAttr(name)
		if val.IsNull() {
			return "", nil
		}
		conv, err := convert.Convert(val, cty.String)
		if err != nil {
			return "", fmt.Errorf("%s: spec attribute %q: %w", action.Ref(), name, err)
		}
		return conv.AsString(), nil
	}

	var err error
	if sp.Command, err = get("command"); err != nil {
		return nil, err
	}
	if sp.StatusCommand, err = get("status_command"); err != nil {
		return nil, err
	}
	if sp.Workdir, err = get("workdir"); err != nil {
		return nil, err
	}
	return sp, nil
}

// stringify renders a variable value for the environment.
func stringify(val cty.Value) (string, error) {
	conv, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	if conv.IsNull() {
		return "", nil
	}
	return conv.AsString(), nil
}
