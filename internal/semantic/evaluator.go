package semantic

import (
	"context"
	"log"
	"time"

	"github.com/signalnine/gradecheck/internal/evidence"
	"github.com/signalnine/gradecheck/internal/pricing"
	"github.com/signalnine/gradecheck/internal/rubric"
	"github.com/signalnine/gradecheck/internal/suites"
	"github.com/signalnine/gradecheck/internal/timeout"
)

const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 2000
	DefaultRetries     = 2
	DefaultDelay       = time.Second
	DefaultTimeout     = 60 * time.Second
)

type Options struct {
	Temperature float64
	MaxTokens   int
	// Retries is the number of extra attempts after the first.
	Retries int
	// Delay separates consecutive calls to the provider, retries included.
	Delay   time.Duration
	Timeout time.Duration
	Pricing *pricing.Table
	// Sleep waits between calls. Tests swap it out.
	Sleep     func(ctx context.Context, d time.Duration) error
	OnVerdict func(*Verdict)
}

// Metadata summarizes a whole evaluation pass.
type Metadata struct {
	TotalAPICalls     int     `json:"total_api_calls"`
	InputTokens       int     `json:"input_tokens"`
	OutputTokens      int     `json:"output_tokens"`
	TotalTokens       int     `json:"total_tokens"`
	EvaluationTimeMS  int64   `json:"evaluation_time_ms"`
	EstimatedCostUSD  float64 `json:"estimated_cost_usd"`
	CriteriaEvaluated int     `json:"criteria_evaluated"`
	CriteriaFailed    int     `json:"criteria_failed"`
	Skipped           bool    `json:"skipped,omitempty"`
	SkipReason        string  `json:"skip_reason,omitempty"`
}

type Evaluation struct {
	Timestamp time.Time           `json:"timestamp"`
	Provider  string              `json:"provider,omitempty"`
	Model     string              `json:"model,omitempty"`
	Verdicts  map[string]*Verdict `json:"criteria_evaluations"`
	Metadata  Metadata            `json:"evaluation_metadata"`
}

// Skipped is the evaluation recorded when scoring could not run at all.
func Skipped(reason string) *Evaluation {
	return &Evaluation{
		Timestamp: time.Now().UTC(),
		Verdicts:  map[string]*Verdict{},
		Metadata:  Metadata{Skipped: true, SkipReason: reason},
	}
}

// Verdict returns the verdict for id, if any.
func (e *Evaluation) Verdict(id string) (*Verdict, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e.Verdicts[id]
	return v, ok
}

// Evaluator runs one scoring request per semantic or hybrid criterion.
type Evaluator struct {
	scorer     Scorer
	extractors *evidence.Registry
	opts       Options
}

func NewEvaluator(scorer Scorer, extractors *evidence.Registry, opts Options) *Evaluator {
	if extractors == nil {
		extractors, _ = evidence.NewRegistry(nil)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Evaluator{scorer: scorer, extractors: extractors, opts: opts}
}

// Evaluate scores every criterion that uses semantic evaluation, in rubric
// order. A criterion that cannot be scored gets a failed verdict; the pass
// itself never fails. tests feeds the unit side of hybrid blends.
func (e *Evaluator) Evaluate(ctx context.Context, r *rubric.Rubric, s *evidence.Summary, tests *suites.Outcome) *Evaluation {
	start := time.Now()
	ev := &Evaluation{
		Timestamp: start.UTC(),
		Provider:  e.scorer.Provider(),
		Model:     e.scorer.Model(),
		Verdicts:  map[string]*Verdict{},
	}
	for _, c := range r.Criteria() {
		if !c.Method.UsesSemantic() {
			continue
		}
		var tally *suites.Tally
		if t, ok := tests.Tally(c.ID); ok {
			tally = &t
		}
		v := e.evaluate(ctx, c, e.extractors.Extract(c.ID, s), tally, &ev.Metadata)
		ev.Verdicts[c.ID] = v
		if v.Failed {
			ev.Metadata.CriteriaFailed++
		} else {
			ev.Metadata.CriteriaEvaluated++
		}
		if e.opts.OnVerdict != nil {
			e.opts.OnVerdict(v)
		}
	}
	ev.Metadata.TotalTokens = ev.Metadata.InputTokens + ev.Metadata.OutputTokens
	ev.Metadata.EvaluationTimeMS = time.Since(start).Milliseconds()
	return ev
}

func (e *Evaluator) evaluate(ctx context.Context, c rubric.Criterion, b evidence.Bundle, tally *suites.Tally, meta *Metadata) *Verdict {
	req := Request{
		System:      SystemPrompt,
		Prompt:      BuildPrompt(c, b, tally),
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
	}
	var (
		lastErr  error
		attempts int
		in, out  int
	)
	for attempt := 0; attempt <= e.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		if meta.TotalAPICalls > 0 {
			if err := e.opts.Sleep(ctx, e.opts.Delay); err != nil {
				lastErr = err
				break
			}
		}
		attempts++
		meta.TotalAPICalls++
		resp, err := e.call(ctx, req)
		if err != nil {
			lastErr = err
			log.Printf("warning: scoring %s (attempt %d): %v", c.ID, attempts, err)
			continue
		}
		in += resp.InputTokens
		out += resp.OutputTokens
		meta.InputTokens += resp.InputTokens
		meta.OutputTokens += resp.OutputTokens
		meta.EstimatedCostUSD += e.opts.Pricing.Cost(e.scorer.Provider(), e.scorer.Model(), resp.InputTokens, resp.OutputTokens)

		v, err := ParseVerdict(resp.Content, c.MaxPoints)
		if err != nil {
			lastErr = err
			log.Printf("warning: scoring %s (attempt %d): %v", c.ID, attempts, err)
			continue
		}
		e.annotate(v, c, attempts, in, out)
		if c.Method == rubric.MethodHybrid {
			unit := 0.0
			if tally != nil {
				unit = tally.Score
			}
			v.Hybrid = NewHybrid(c, unit, v.SemanticScore)
			v.Score = v.Hybrid.Final
		}
		return v
	}

	serr := &ServiceError{CriterionID: c.ID, Err: lastErr}
	log.Printf("warning: %v; recording evaluation_failed", serr)
	v := &Verdict{
		Score:         0,
		MaxPoints:     c.MaxPoints,
		Level:         rubric.NotEvaluated,
		Justification: "Semantic evaluation failed after " + attemptsText(attempts),
		Strengths:     []string{},
		Weaknesses:    []string{},
		Improvements:  []string{},
		FilesAnalyzed: []string{},
		Failed:        true,
		Error:         serr.Error(),
	}
	e.annotate(v, c, attempts, in, out)
	return v
}

func (e *Evaluator) annotate(v *Verdict, c rubric.Criterion, attempts, in, out int) {
	v.CriterionID = c.ID
	v.Title = c.Title
	v.Method = c.Method
	v.MaxPoints = c.MaxPoints
	v.Attempts = attempts
	v.InputTokens = in
	v.OutputTokens = out
}

func (e *Evaluator) call(ctx context.Context, req Request) (*Response, error) {
	cctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	resp, err := e.scorer.Score(cctx, req)
	if err != nil {
		return nil, timeout.Check(cctx, "semantic scoring", e.opts.Timeout, err)
	}
	return resp, nil
}

func attemptsText(n int) string {
	if n == 1 {
		return "1 attempt"
	}
	return num(float64(n)) + " attempts"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
