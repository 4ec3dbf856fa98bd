package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/signalnine/gradecheck/internal/config"
	"github.com/signalnine/gradecheck/internal/gitops"
	"github.com/signalnine/gradecheck/internal/metrics"
	"github.com/signalnine/gradecheck/internal/pipeline"
)

type gradeFlags struct {
	rubric       string
	target       string
	repo         string
	tag          string
	output       string
	buildFailed  bool
	skipSemantic bool
	batch        string
	parallel     int
}

func newGradeCmd() *cobra.Command {
	var f gradeFlags
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Run the grading pipeline on a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			applyGradeFlags(cmd, cfg, &f)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runGrade(ctx, cfg, &f)
		},
	}
	cmd.Flags().StringVar(&f.rubric, "rubric", "", "rubric file (json or yaml)")
	cmd.Flags().StringVar(&f.target, "target", "", "project directory to grade")
	cmd.Flags().StringVar(&f.repo, "repo", "", "git repository to clone and grade")
	cmd.Flags().StringVar(&f.tag, "tag", "", "tag or branch to check out with --repo")
	cmd.Flags().StringVar(&f.output, "output", "", "results directory")
	cmd.Flags().BoolVar(&f.buildFailed, "build-failed", false, "withhold unit-test credit because the build failed")
	cmd.Flags().BoolVar(&f.skipSemantic, "skip-semantic", false, "skip semantic evaluation")
	cmd.Flags().StringVar(&f.batch, "batch", "", "grade every subdirectory of this directory")
	cmd.Flags().IntVar(&f.parallel, "parallel", 0, "max concurrent targets in batch mode")
	return cmd
}

func applyGradeFlags(cmd *cobra.Command, cfg *config.Config, f *gradeFlags) {
	if f.rubric != "" {
		cfg.Rubric = f.rubric
	}
	if f.target != "" {
		cfg.Target = f.target
	}
	if f.output != "" {
		cfg.Results.Dir = f.output
	}
	if cmd.Flags().Changed("build-failed") {
		cfg.Build.Failed = f.buildFailed
	}
	if f.repo != "" && cfg.Repository == "" {
		cfg.Repository = f.repo
	}
	if f.parallel > 0 {
		cfg.Batch.Parallel = f.parallel
	}
}

func runGrade(ctx context.Context, cfg *config.Config, f *gradeFlags) error {
	if f.repo != "" && f.batch != "" {
		return fmt.Errorf("--repo and --batch are mutually exclusive")
	}
	if f.repo != "" {
		dir, err := os.MkdirTemp("", "gradecheck-clone-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		dest := filepath.Join(dir, repoName(f.repo))
		fmt.Printf("Cloning %s...\n", f.repo)
		if err := gitops.CloneAndCheckout(ctx, f.repo, f.tag, dest); err != nil {
			return err
		}
		cfg.Target = dest
	}

	store := openHistory(ctx, cfg)
	if store != nil {
		defer store.Close()
	}
	opts := pipeline.Options{
		Config:       cfg,
		SkipSemantic: f.skipSemantic,
		Metrics:      metrics.New(),
		History:      store,
	}

	if f.batch == "" {
		_, err := pipeline.Run(ctx, opts)
		return err
	}

	targets, err := pipeline.ListTargets(f.batch, cfg.Results.Dir)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no project directories under %s", f.batch)
	}
	fmt.Printf("Grading %d targets (parallel: %d)\n", len(targets), cfg.Batch.Parallel)
	entries := pipeline.RunBatch(ctx, opts, targets, cfg.Batch.Parallel)
	return printBatch(entries)
}

func printBatch(entries []pipeline.BatchEntry) error {
	fmt.Println("\n--- Batch Results ---")
	failed := 0
	for _, e := range entries {
		name := filepath.Base(e.Target)
		if e.Err != nil {
			failed++
			fmt.Printf("  %s %s: %v\n", color.RedString("✗"), name, e.Err)
			continue
		}
		rep := e.Result.Report
		fmt.Printf("  %s %s: %.2f/%.0f (%.1f%%) %s\n", color.GreenString("✓"), name, rep.TotalScore, rep.MaxScore, rep.Percentage, rep.LetterGrade)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, len(entries))
	}
	return nil
}

// repoName is the last path element of a clone URL without its .git suffix.
func repoName(repo string) string {
	name := filepath.Base(filepath.ToSlash(repo))
	if ext := filepath.Ext(name); ext == ".git" {
		name = name[:len(name)-len(ext)]
	}
	if name == "" || name == "." || name == "/" {
		return "target"
	}
	return name
}
