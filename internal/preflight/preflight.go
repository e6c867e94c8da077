package preflight

import (
	"context"
	"strings"

	"spritebatch/internal/config"
	"spritebatch/internal/services/detector"
	"spritebatch/internal/services/storage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options narrows RunAll to a particular invocation.
type Options struct {
	// RootDir is the directory that will be scanned. Empty skips the check.
	RootDir string
	// OutputDir overrides cfg.Paths.OutputDir.
	OutputDir string
	// Detector overrides the client built from cfg.Detector.
	Detector *detector.Client
}

// RunAll executes all applicable preflight checks for the given config.
// Publishing and broker checks only run when the feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	if strings.TrimSpace(opts.RootDir) != "" {
		results = append(results, CheckRootDir(opts.RootDir))
	}

	outputDir := opts.OutputDir
	if strings.TrimSpace(outputDir) == "" {
		outputDir = cfg.Paths.OutputDir
	}
	results = append(results, CheckOutputRoot(outputDir))
	results = append(results, CheckFreeSpace(outputDir, MinFreeBytes))
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))

	client := opts.Detector
	if client == nil {
		client = detector.New(cfg.Detector.Endpoint, detector.WithFieldName(cfg.Detector.FieldName))
	}
	results = append(results, CheckEndpoint(ctx, client))

	if cfg.Publish.Enabled {
		results = append(results, CheckPublish(ctx, storage.New(cfg.Publish)))
	}

	if cfg.Notifications.Enabled {
		results = append(results, CheckBroker(cfg.Notifications))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
