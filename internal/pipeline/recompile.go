package pipeline

import (
	"errors"
	"io/fs"
	"log"
	"path/filepath"

	"github.com/signalnine/gradecheck/internal/config"
	"github.com/signalnine/gradecheck/internal/evidence"
	"github.com/signalnine/gradecheck/internal/report"
	"github.com/signalnine/gradecheck/internal/result"
	"github.com/signalnine/gradecheck/internal/rubric"
	"github.com/signalnine/gradecheck/internal/semantic"
	"github.com/signalnine/gradecheck/internal/signals"
	"github.com/signalnine/gradecheck/internal/suites"
)

// Recompile rebuilds the report of an existing run from its stage records,
// using cfg's overrides. The rubric is rubricPath when given, else the one
// the run was graded with, else cfg's. Nothing is re-executed, so the same
// records and config always give byte-identical artifacts.
func Recompile(runDir string, cfg *config.Config, rubricPath string) (*report.Report, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	meta, err := result.ReadMeta(filepath.Join(runDir, result.MetaFile))
	if err != nil {
		return nil, err
	}
	if rubricPath == "" {
		rubricPath = meta.Rubric
	}
	if rubricPath == "" {
		rubricPath = cfg.Rubric
	}
	rub, err := rubric.Load(rubricPath)
	if err != nil {
		return nil, err
	}
	compiler, err := report.NewCompiler(rub, cfg.Overrides)
	if err != nil {
		return nil, err
	}

	in := report.Inputs{
		Timestamp:   meta.StartedAt,
		Repository:  meta.Repository,
		BuildFailed: meta.BuildFailed,
	}
	var (
		tests    suites.Outcome
		eval     semantic.Evaluation
		summary  evidence.Summary
		observed map[string]*signals.Signal
	)
	if readOptional(runDir, result.UnitTestsFile, &tests) {
		in.Tests = &tests
	}
	if readOptional(runDir, result.SemanticFile, &eval) {
		in.Semantic = &eval
	}
	if readOptional(runDir, result.EvidenceFile, &summary) {
		in.Evidence = &summary
	}
	if readOptional(runDir, result.SignalsFile, &observed) {
		in.Signals = observed
	}

	rep := compiler.Compile(in)
	if err := report.Write(runDir, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// readOptional decodes a stage record. A missing record means the stage
// never produced one; an unreadable one is logged and treated the same.
func readOptional(dir, name string, v any) bool {
	err := result.ReadRecord(dir, name, v)
	if err == nil {
		return true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		log.Printf("warning: %v", err)
	}
	return false
}
