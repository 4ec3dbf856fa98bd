package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// BatchEntry is the outcome of grading one target in a batch.
type BatchEntry struct {
	Target string
	Result *Result
	Err    error
}

// ListTargets returns the project directories directly under dir, sorted.
// Hidden directories and the results directory are skipped.
func ListTargets(dir, resultsDir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading batch dir: %w", err)
	}
	skip, _ := filepath.Abs(resultsDir)
	var targets []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if abs, _ := filepath.Abs(path); abs == skip {
			continue
		}
		targets = append(targets, path)
	}
	sort.Strings(targets)
	return targets, nil
}

// RunBatch grades every target with at most parallel runs at once. Each
// run gets its own copy of the config and a console prefix naming the
// target; one target failing does not stop the others. Entries come back
// in target order.
func RunBatch(ctx context.Context, base Options, targets []string, parallel int) []BatchEntry {
	if base.Out == nil {
		base.Out = os.Stdout
	}
	mu := &sync.Mutex{}
	entries := make([]BatchEntry, len(targets))
	for i, t := range targets {
		entries[i] = BatchEntry{Target: t, Err: context.Canceled}
	}
	forEach(ctx, len(targets), parallel, func(i int) {
		opts := base
		name := filepath.Base(targets[i])
		if base.Config != nil {
			cfg := *base.Config
			if cfg.Repository == "" {
				cfg.Repository = name
			}
			opts.Config = &cfg
		}
		opts.Target = targets[i]
		opts.RunName = ""
		opts.outMu = mu
		opts.prefix = name
		res, err := Run(ctx, opts)
		entries[i] = BatchEntry{Target: targets[i], Result: res, Err: err}
	})
	return entries
}
