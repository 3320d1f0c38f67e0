// Package cli turns command-line arguments into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/forgegrid/internal/app"
	"github.com/vk/forgegrid/internal/config"
)

// ExitError is an error carrying a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating the program should exit cleanly (help, no work),
// or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("forgegrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
forgegrid - a dependency-graph runner for build, deploy, run and test actions.

Usage:
  forgegrid [options] ACTION [ACTION...]

Arguments:
  ACTION
    An action reference in kind.name form, e.g. "deploy.api".

Options:
`)
		flagSet.PrintDefaults()
	}

	projectFlag := flagSet.String("project", ".", "Path to the project root containing .hcl files.")
	forceFlag := flagSet.String("force", "", "Comma-separated action references to run even when already satisfied.")
	forceAllFlag := flagSet.Bool("force-all", false, "Run every action even when already satisfied.")
	skipDepsFlag := flagSet.Bool("skip-dependencies", false, "Run only the requested actions, ignoring declared dependencies.")
	stopOnFailureFlag := flagSet.Bool("stop-on-failure", false, "Stop scheduling new tasks after the first failure.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, true, nil
	}

	refs, err := parseRefs(flagSet.Args())
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	var force []config.Ref
	if *forceFlag != "" {
		force, err = parseRefs(strings.Split(*forceFlag, ","))
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	return &app.Config{
		ProjectPath:      *projectFlag,
		Refs:             refs,
		Force:            force,
		ForceAll:         *forceAllFlag,
		SkipDependencies: *skipDepsFlag,
		StopOnFailure:    *stopOnFailureFlag,
		LogFormat:        logFormat,
		LogLevel:         logLevel,
	}, false, nil
}

func parseRefs(raw []string) ([]config.Ref, error) {
	refs := make([]config.Ref, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		ref, err := config.ParseRef(s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
