package pipeline

import (
	"context"
	"log"
	"sort"

	"github.com/signalnine/gradecheck/internal/config"
	"github.com/signalnine/gradecheck/internal/result"
	"github.com/signalnine/gradecheck/internal/signals"
)

// collectSignals gathers one signal per override source in use. A source
// with no usable input is left out, and the compiler falls back to the
// criterion's own method.
func (r *run) collectSignals(ctx context.Context) map[string]*signals.Signal {
	out := map[string]*signals.Signal{}
	for _, source := range signals.Sources {
		maxPoints, ok := r.sourceMax(source)
		if !ok {
			continue
		}
		var sig *signals.Signal
		switch source {
		case signals.SourceGit:
			sig = r.gitSignal(ctx, maxPoints)
		case signals.SourceDeployment:
			sig = r.deploymentSignal(ctx, maxPoints)
		}
		if sig == nil {
			r.con.warn("%s signal unavailable; using the criterion's own scoring", source)
			continue
		}
		r.con.ok("%s signal: %s/%s", source, fmtPoints(sig.Score), fmtPoints(sig.MaxPoints))
		out[source] = sig
	}
	if len(out) > 0 {
		r.record(result.SignalsFile, out)
	}
	return out
}

// sourceMax is the max points of the first criterion, by id, overridden by
// source.
func (r *run) sourceMax(source string) (float64, bool) {
	var ids []string
	for id, s := range r.cfg.Overrides {
		if s == source {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, false
	}
	sort.Strings(ids)
	c, ok := r.rubric.Criterion(ids[0])
	if !ok {
		return 0, false
	}
	return c.MaxPoints, true
}

func (r *run) gitSignal(ctx context.Context, maxPoints float64) *signals.Signal {
	if path := config.Resolve(r.target, r.cfg.Signals.GitAnalysisFile); config.Exists(path) {
		sig, err := signals.LoadGitAnalysis(path, maxPoints)
		if err == nil {
			return sig
		}
		log.Printf("warning: git analysis: %v", err)
	}
	sig, err := signals.AnalyzeGit(ctx, r.target, maxPoints, r.cfg.Signals.GitTimeout)
	if err != nil {
		log.Printf("warning: git analysis: %v", err)
		return nil
	}
	return sig
}

func (r *run) deploymentSignal(ctx context.Context, maxPoints float64) *signals.Signal {
	sc := r.cfg.Signals
	if path := config.Resolve(r.target, sc.DeploymentTestFile); config.Exists(path) {
		sig, err := signals.LoadDeploymentTest(path, maxPoints)
		if err == nil {
			return sig
		}
		log.Printf("warning: deployment test: %v", err)
	}
	path := config.Resolve(r.target, sc.DeploymentURLFile)
	if !config.Exists(path) {
		return nil
	}
	url, err := signals.ReadDeploymentURL(path)
	if err != nil {
		log.Printf("warning: deployment url: %v", err)
		return nil
	}
	prober := r.opts.Prober
	if prober == nil {
		prober = signals.NewProber(sc.ProbeTimeout, sc.KnownHosts)
	}
	return prober.Probe(ctx, url, maxPoints)
}
