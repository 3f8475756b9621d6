// cmd/ddk-release/main.go
//
// Entry point for the release pipeline. One positional argument, the
// release version; everything else is driven by release.yaml and the host
// environment.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dlcdevkit/ddk-release/internal/config"
	"github.com/dlcdevkit/ddk-release/internal/execx"
	"github.com/dlcdevkit/ddk-release/internal/logging"
	"github.com/dlcdevkit/ddk-release/internal/pipeline"
	"github.com/dlcdevkit/ddk-release/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ddk-release", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	configPath := fs.String("config", "", "path to release config (default release.yaml in the project dir)")
	projectDir := fs.String("project", ".", "project directory holding the coordinated packages")
	dryRun := fs.Bool("dry-run", false, "rehearse the release: run gates and builds, log git and registry commands instead of executing them")
	keepArtifacts := fs.Bool("keep-artifacts", false, "keep the scratch artifact directory after a successful run")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ddk-release [flags] <version>\n\n")
		fmt.Fprintf(fs.Output(), "Coordinates a release across the ddk packages: syncs manifest versions,\n")
		fmt.Fprintf(fs.Output(), "runs test gates, builds bindings, packages artifacts, and publishes.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "ddk-release: exactly one version argument is required (e.g. 1.2.0)")
		return 1
	}
	v, err := version.Parse(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ddk-release: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*projectDir, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ddk-release: %v\n", err)
		return 1
	}

	var logOpts []logging.Option
	if cfg.Env.ColorDisabled() {
		logOpts = append(logOpts, logging.WithoutColor())
	}
	logger, err := logging.New(cfg.ProjectDir, logOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ddk-release: %v\n", err)
		return 1
	}
	defer logger.Close()

	var pipeOpts []pipeline.Option
	if *dryRun {
		pipeOpts = append(pipeOpts, pipeline.WithDryRun())
	}
	if *keepArtifacts {
		pipeOpts = append(pipeOpts, pipeline.WithKeepArtifacts())
	}

	outcome, err := pipeline.New(cfg, logger, execx.Local{}, pipeOpts...).Run(context.Background(), v)
	if err != nil {
		logger.Errorf("release %s failed: %v", v.String(), err)
		return 1
	}
	if len(outcome.Warnings) > 0 {
		logger.Successf("release %s complete with %d warning(s)", v.String(), len(outcome.Warnings))
	} else {
		logger.Successf("release %s complete", v.String())
	}
	return 0
}
