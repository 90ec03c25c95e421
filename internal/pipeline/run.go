// Package pipeline drives a product context through the intel, strategy and
// asset stages and records every step in the run's trail.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/gtm-copilot/internal/extract"
	"github.com/jonathan/gtm-copilot/internal/llm"
	"github.com/jonathan/gtm-copilot/internal/logging"
	"github.com/jonathan/gtm-copilot/internal/metrics"
	"github.com/jonathan/gtm-copilot/internal/prompts"
	"github.com/jonathan/gtm-copilot/internal/quality"
	"github.com/jonathan/gtm-copilot/internal/schemas"
	"github.com/jonathan/gtm-copilot/internal/types"
)

// DefaultRunTimeout bounds a whole run.
const DefaultRunTimeout = 5 * time.Minute

const exportTimeout = 30 * time.Second

// Generation parameters per stage.
var (
	intelParams    = llm.Params{MaxOutputTokens: 4096, Temperature: 0.1}
	strategyParams = llm.Params{MaxOutputTokens: 8192, Temperature: 0.2, ResponseMIMEType: llm.MIMETypeJSON}
	repairParams   = llm.Params{MaxOutputTokens: 8192, Temperature: 0.1, ResponseMIMEType: llm.MIMETypeJSON}
	assetParams    = llm.Params{MaxOutputTokens: 4096, Temperature: 0.3, ResponseMIMEType: llm.MIMETypeJSON}
)

// Sender performs one logical generation call. *llm.ResilientClient
// implements it.
type Sender interface {
	Send(ctx context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error)
}

// Exporter receives every run that reached a terminal status.
type Exporter interface {
	Export(ctx context.Context, run *Run) error
}

// ProgressEvent is emitted for every trail entry as it is appended.
type ProgressEvent struct {
	RunID  string         `json:"run_id"`
	Phase  Phase          `json:"phase"`
	Status Status         `json:"status"`
	Entry  types.LogEntry `json:"entry"`
}

// ProgressCallback is called for each ProgressEvent, in trail order. It must
// not block for long; concurrent stages wait on it.
type ProgressCallback func(event ProgressEvent)

// Run is one pipeline invocation and everything it produced.
type Run struct {
	ID     uuid.UUID            `json:"id"`
	Status Status               `json:"status"`
	Phase  Phase                `json:"phase"`
	Input  types.ProductContext `json:"input"`

	Intel    *types.Document `json:"intel,omitempty"`
	Strategy *types.Document `json:"strategy,omitempty"`
	// StrategyOriginal holds the pre-repair strategy while a repair is pending.
	StrategyOriginal *types.Document `json:"strategy_original,omitempty"`
	Battlecards      *types.Document `json:"battlecards,omitempty"`
	Messaging        *types.Document `json:"messaging,omitempty"`

	Gate       *Gate  `json:"gate,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
	// Err is the failure cause, or a *BlockedError for a blocked run.
	Err error `json:"-"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Trail       *Trail    `json:"trail"`
}

// Documents returns the run's documents in stage order, skipping absent ones.
func (r *Run) Documents() []*types.Document {
	var out []*types.Document
	for _, d := range []*types.Document{r.Intel, r.Strategy, r.Battlecards, r.Messaging} {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

// Options configures an Orchestrator.
type Options struct {
	// UncertaintyThreshold defaults to DefaultUncertaintyThreshold.
	UncertaintyThreshold float64
	Thresholds           quality.Thresholds
	// RunTimeout defaults to DefaultRunTimeout.
	RunTimeout time.Duration
	Exporter   Exporter
	OnProgress ProgressCallback
	Logger     *zap.Logger
	Now        func() time.Time
}

// Orchestrator runs pipelines. It holds only read-only configuration and is
// safe for concurrent runs.
type Orchestrator struct {
	client  Sender
	repair  Sender
	auditor *quality.Auditor
	opts    Options
	logger  *zap.Logger
}

// New creates an orchestrator. repair serves the coverage repair request with
// its own retry policy; nil reuses client.
func New(client, repair Sender, opts Options) *Orchestrator {
	if repair == nil {
		repair = client
	}
	if opts.UncertaintyThreshold <= 0 {
		opts.UncertaintyThreshold = DefaultUncertaintyThreshold
	}
	if opts.Thresholds == (quality.Thresholds{}) {
		opts.Thresholds = quality.DefaultThresholds()
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		client:  client,
		repair:  repair,
		auditor: quality.DefaultAuditor(opts.Thresholds),
		opts:    opts,
		logger:  logging.OrNop(opts.Logger),
	}
}

// Run executes the pipeline for pc. It never returns nil; failures are
// reported through the run's Status, Diagnostic and Trail.
func (o *Orchestrator) Run(ctx context.Context, pc types.ProductContext) *Run {
	return o.execute(ctx, pc, nil)
}

// Stream is Run with an extra per-run progress callback, called after
// Options.OnProgress.
func (o *Orchestrator) Stream(ctx context.Context, pc types.ProductContext, cb ProgressCallback) *Run {
	return o.execute(ctx, pc, cb)
}

// runner holds the state of one run while it executes.
type runner struct {
	o      *Orchestrator
	run    *Run
	pc     types.ProductContext
	logger *zap.Logger
	// mu guards the asset documents written by concurrent stages.
	mu sync.Mutex
}

func (o *Orchestrator) execute(ctx context.Context, pc types.ProductContext, cb ProgressCallback) (run *Run) {
	run = &Run{
		ID:        uuid.New(),
		Status:    StatusIdle,
		Phase:     PhaseIdle,
		Input:     pc,
		StartedAt: o.opts.Now(),
		Trail:     NewTrail(),
	}
	run.Trail.now = o.opts.Now

	r := &runner{
		o:      o,
		run:    run,
		pc:     pc.Normalized(),
		logger: o.logger.With(zap.String("run_id", run.ID.String())),
	}
	run.Trail.onAppend = r.forward(cb)

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("pipeline panic", zap.Any("panic", rec))
			r.fail(types.StagePipeline, fmt.Errorf("internal error: %v", rec), "internal error")
		}
		r.finish(ctx)
	}()

	runCtx, cancel := context.WithTimeout(ctx, o.opts.RunTimeout)
	defer cancel()

	r.drive(runCtx)
	return run
}

func (r *runner) drive(ctx context.Context) {
	if err := r.pc.Validate(); err != nil {
		r.fail(types.StagePipeline, err, err.Error())
		return
	}
	r.log(types.StagePipeline, types.SeverityInfo, fmt.Sprintf("run started for %q", r.pc.ProductName.String()))

	r.transition(PhaseIntelRunning)
	r.runIntel(ctx)
	r.transition(PhaseIntelDone)

	r.transition(PhaseStrategyRunning)
	if !r.runStrategy(ctx) {
		return
	}
	if missing := CoverageMissing(r.run.Strategy.Data); len(missing) > 0 {
		r.transition(PhaseStrategyRepairRunning)
		r.repairStrategy(ctx, missing)
	}
	r.transition(PhaseStrategyDone)

	r.transition(PhaseGatingCheck)
	gate := Evaluate(r.run.Strategy.Data, r.o.opts.UncertaintyThreshold)
	r.run.Gate = &gate
	if gate.Blocked {
		r.run.Err = gate.Err()
		r.log(types.StageGating, types.SeverityWarn, "assets blocked: "+r.run.Err.Error())
		r.transition(PhaseBlocked)
		return
	}
	r.log(types.StageGating, types.SeverityInfo,
		fmt.Sprintf("gate passed: uncertainty ratio %.2f within %.2f", gate.Ratio, gate.Threshold))

	r.transition(PhaseAssetsRunning)
	r.runAssets(ctx)
	r.transition(PhaseSucceeded)
}

func (r *runner) runIntel(ctx context.Context) {
	prompt, err := prompts.Intel(r.pc, r.o.opts.Now())
	var data map[string]any
	if err == nil {
		data, err = r.generate(ctx, r.o.client, types.StageIntel, prompt, intelParams, llm.Tools{GoogleSearch: true})
	}
	if err != nil {
		reason := Diagnose(err)
		r.log(types.StageIntel, types.SeverityWarn, fmt.Sprintf("intel unavailable, continuing without it: %v", err))
		r.run.Intel = r.degraded(types.StageIntel, degradedIntel(reason))
		return
	}
	r.run.Intel = r.document(types.StageIntel, data)
	r.log(types.StageIntel, types.SeverityInfo, fmt.Sprintf("intel ready with %d claim(s)", countAt(data, "market_intel.claims")))
}

func (r *runner) runStrategy(ctx context.Context) bool {
	prompt, err := prompts.Strategy(r.pc, r.run.Intel.Data)
	var data map[string]any
	if err == nil {
		data, err = r.generate(ctx, r.o.client, types.StageStrategy, prompt, strategyParams, llm.Tools{})
	}
	if err != nil {
		r.fail(types.StageStrategy, err, Diagnose(err))
		return false
	}
	r.run.Strategy = r.document(types.StageStrategy, data)
	r.log(types.StageStrategy, types.SeverityInfo, "strategy ready")
	return true
}

// repairStrategy issues exactly one repair request. The original strategy
// stays unless the candidate validates.
func (r *runner) repairStrategy(ctx context.Context, missing []string) {
	r.run.StrategyOriginal = r.run.Strategy
	defer func() { r.run.StrategyOriginal = nil }()

	r.log(types.StageRepair, types.SeverityWarn,
		fmt.Sprintf("strategy left filled inputs unused (%s), requesting repair", strings.Join(missing, ", ")))

	prompt, err := prompts.StrategyRepair(r.pc, missing, r.run.Strategy.Data)
	var data map[string]any
	if err == nil {
		data, err = r.generate(ctx, r.o.repair, types.StageRepair, prompt, repairParams, llm.Tools{})
	}
	if err != nil {
		r.log(types.StageRepair, types.SeverityWarn, (&RepairExhausted{MissingFields: missing, Cause: err}).Error())
		return
	}
	r.run.Strategy = r.document(types.StageRepair, data)
	if left := CoverageMissing(data); len(left) > 0 {
		r.log(types.StageRepair, types.SeverityWarn,
			fmt.Sprintf("repaired strategy still reports unused inputs: %s", strings.Join(left, ", ")))
		return
	}
	r.log(types.StageRepair, types.SeverityInfo, "strategy repaired")
}

// runAssets generates both assets concurrently. A failure in one never
// cancels the other; each falls back to its static document.
func (r *runner) runAssets(ctx context.Context) {
	var g errgroup.Group
	for _, stage := range types.AssetStages {
		g.Go(func() error {
			doc := r.asset(ctx, stage)
			r.mu.Lock()
			defer r.mu.Unlock()
			switch stage {
			case types.StageBattlecards:
				r.run.Battlecards = doc
			case types.StageMessaging:
				r.run.Messaging = doc
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *runner) asset(ctx context.Context, stage types.Stage) (doc *types.Document) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log(stage, types.SeverityError, fmt.Sprintf("%s generation panicked: %v, using fallback", stage, rec))
			doc = r.degraded(stage, fallbackFor(stage, r.pc))
		}
	}()

	var (
		prompt string
		err    error
	)
	switch stage {
	case types.StageBattlecards:
		prompt, err = prompts.Battlecards(r.pc, r.run.Strategy.Data)
	case types.StageMessaging:
		prompt, err = prompts.Messaging(r.pc, r.run.Strategy.Data)
	default:
		err = fmt.Errorf("unknown asset stage %q", stage)
	}

	var data map[string]any
	if err == nil {
		data, err = r.generate(ctx, r.o.client, stage, prompt, assetParams, llm.Tools{})
	}
	if err != nil {
		r.log(stage, types.SeverityWarn, fmt.Sprintf("%s failed (%s), using fallback: %v", stage, Diagnose(err), err))
		return r.degraded(stage, fallbackFor(stage, r.pc))
	}
	r.log(stage, types.SeverityInfo, fmt.Sprintf("%s ready", stage))
	return r.document(stage, data)
}

// generate sends one request and turns the answer into a schema-valid object.
func (r *runner) generate(ctx context.Context, client Sender, stage types.Stage, prompt string, params llm.Params, tools llm.Tools) (map[string]any, error) {
	req := &llm.GenerationRequest{
		Stage:  stage,
		Tier:   llm.StageTier(stage),
		Prompt: prompt,
		Params: params,
		Tools:  tools,
		Hook:   r.attemptHook,
	}
	resp, err := client.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	data, tier, err := extract.ExtractWithTier(resp.TextOrEmpty())
	if err != nil {
		return nil, err
	}
	if tier > extract.TierDirect {
		r.log(stage, types.SeverityInfo, fmt.Sprintf("document recovered by %s parsing", tier))
	}

	if err := schemas.ValidateStage(data, stage).Err(stage); err != nil {
		return nil, err
	}
	return data, nil
}

// document wraps validated data and records the advisory audit.
func (r *runner) document(stage types.Stage, data map[string]any) *types.Document {
	report := r.o.auditor.Audit(data, stage)
	for _, w := range report.Warnings {
		r.log(stage, types.SeverityWarn, "quality: "+w)
	}
	return &types.Document{Stage: stage.SchemaStage(), Data: data, Warnings: report.Warnings}
}

func (r *runner) degraded(stage types.Stage, data map[string]any) *types.Document {
	metrics.DegradedDocuments.WithLabelValues(string(stage)).Inc()
	return &types.Document{Stage: stage, Data: data, Degraded: true}
}

func (r *runner) attemptHook(ev llm.AttemptEvent) {
	msg := fmt.Sprintf("attempt %d: ", ev.Attempt)
	if ev.Status != 0 {
		msg += fmt.Sprintf("status %d", ev.Status)
	} else if ev.Err != nil {
		msg += ev.Err.Error()
	}
	msg += fmt.Sprintf(" in %s (%s)", ev.Duration.Round(time.Millisecond), ev.Outcome)

	severity := types.SeverityInfo
	switch ev.Outcome {
	case metrics.OutcomeSuccess:
	case metrics.OutcomeRetry:
		severity = types.SeverityWarn
		if ev.Delay > 0 {
			msg += fmt.Sprintf(", retrying in %s", ev.Delay)
		}
	default:
		severity = types.SeverityWarn
	}
	r.log(ev.Stage, severity, msg)
}

// transition moves the run to phase to. Moves the state machine does not
// allow are logged and not applied.
func (r *runner) transition(to Phase) bool {
	from := r.run.Phase
	if !CanTransition(from, to) {
		r.log(types.StagePipeline, types.SeverityError, (&TransitionError{From: from, To: to}).Error())
		return false
	}
	r.run.Phase = to
	r.run.Status = to.Status()
	r.log(types.StagePipeline, types.SeverityInfo, fmt.Sprintf("phase %s -> %s", from, to))
	return true
}

func (r *runner) fail(stage types.Stage, err error, diagnostic string) {
	r.run.Err = err
	r.run.Diagnostic = diagnostic
	r.log(stage, types.SeverityError, fmt.Sprintf("%s failed: %v", stage, err))
	r.transition(PhaseFailed)
}

func (r *runner) finish(ctx context.Context) {
	r.run.CompletedAt = r.o.opts.Now()
	status := string(r.run.Status)
	metrics.PipelineRuns.WithLabelValues(status).Inc()
	metrics.PipelineRunDuration.WithLabelValues(status).Observe(r.run.CompletedAt.Sub(r.run.StartedAt).Seconds())
	r.log(types.StagePipeline, types.SeverityInfo, fmt.Sprintf("run finished: %s", status))

	if r.o.opts.Exporter == nil {
		return
	}
	exportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
	defer cancel()
	if err := r.o.opts.Exporter.Export(exportCtx, r.run); err != nil {
		r.log(types.StagePipeline, types.SeverityWarn, fmt.Sprintf("export failed: %v", err))
	}
}

func (r *runner) log(stage types.Stage, severity types.Severity, message string) {
	r.run.Trail.Append(stage, severity, message)
}

// forward mirrors each trail entry to zap and the progress callbacks.
func (r *runner) forward(cb ProgressCallback) func(types.LogEntry) {
	return func(e types.LogEntry) {
		fields := []zap.Field{
			zap.Int("seq", e.Seq),
			zap.String("stage", string(e.Stage)),
		}
		switch e.Severity {
		case types.SeverityError:
			r.logger.Error(e.Message, fields...)
		case types.SeverityWarn:
			r.logger.Warn(e.Message, fields...)
		default:
			r.logger.Info(e.Message, fields...)
		}

		if r.o.opts.OnProgress == nil && cb == nil {
			return
		}
		event := ProgressEvent{
			RunID:  r.run.ID.String(),
			Phase:  r.run.Phase,
			Status: r.run.Status,
			Entry:  e,
		}
		if r.o.opts.OnProgress != nil {
			r.o.opts.OnProgress(event)
		}
		if cb != nil {
			cb(event)
		}
	}
}

func countAt(data map[string]any, path string) int {
	v, ok := types.Lookup(data, path)
	if !ok {
		return 0
	}
	items, _ := v.([]any)
	return len(items)
}
