package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"advisor/internal/inference"
	"advisor/internal/logging"
	"advisor/internal/runtime"
	"advisor/internal/types"
	"advisor/internal/world"
)

// AnalysisWriter is the slice of the store the orchestrator needs.
type AnalysisWriter interface {
	SaveAnalysis(analysis *types.Analysis, actions []types.Recommendation) error
}

// Orchestrator sequences one full analysis run: classify, collect, select,
// execute, generate insight, generate recommendations, persist. Stages run
// strictly in order; parallelism lives inside each stage.
type Orchestrator struct {
	host        runtime.Host
	store       AnalysisWriter
	worlds      *world.Manager
	classifier  *Classifier
	collector   *Collector
	selector    *Selector
	executor    *Executor
	insights    *InsightGenerator
	recommender *RecommendationGenerator
	runTimeout  time.Duration
}

// Options tune the pipeline. Zero values fall back to sane defaults inside
// the stages.
type Options struct {
	MaxConcurrentExecutions int
	MaxRecommendations      int
	RunTimeout              time.Duration
}

// NewOrchestrator wires the pipeline stages around one LLM client and one
// host environment.
func NewOrchestrator(llm inference.LLMClient, host runtime.Host, registry runtime.Registry, store AnalysisWriter, worlds *world.Manager, opts Options) *Orchestrator {
	return &Orchestrator{
		host:        host,
		store:       store,
		worlds:      worlds,
		classifier:  NewClassifier(llm),
		collector:   NewCollector(host),
		selector:    NewSelector(llm),
		executor:    NewExecutor(llm, host, registry, worlds, opts.MaxConcurrentExecutions),
		insights:    NewInsightGenerator(llm),
		recommender: NewRecommendationGenerator(llm, opts.MaxRecommendations),
		runTimeout:  opts.RunTimeout,
	}
}

// Run executes one end-to-end analysis for the agent and persists the result.
// Insight-generation and persistence failures abort the run; branch failures
// inside the fan-out stages were already isolated by the stage itself.
func (o *Orchestrator) Run(ctx context.Context, agentID string) (*types.Analysis, error) {
	start := time.Now()
	runID := uuid.NewString()
	audit := logging.AuditWithRun(runID, agentID)
	audit.RunStart(runID, agentID)
	logging.Pipeline("Run %s starting for agent %s", runID, agentID)

	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	analysis, err := o.run(ctx, audit, agentID)
	if err != nil {
		audit.RunError(runID, err)
		logging.PipelineError("Run %s failed: %v", runID, err)
		return nil, err
	}

	analysis.DurationMs = time.Since(start).Milliseconds()
	audit.RunComplete(runID, analysis.DurationMs, len(analysis.CapabilitiesUsed))
	logging.Pipeline("Run %s completed in %dms (analysis %s)", runID, analysis.DurationMs, analysis.ID)
	return analysis, nil
}

func (o *Orchestrator) run(ctx context.Context, audit *logging.AuditLogger, agentID string) (*types.Analysis, error) {
	worldID, err := o.worlds.EnsureAgentWorld(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("ensure world: %w", err)
	}

	caps, err := o.host.Capabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover capabilities: %w", err)
	}
	logging.Pipeline("Discovered %d capabilities", len(caps))

	stage := time.Now()
	set, err := o.classifier.Classify(ctx, caps)
	if err != nil {
		audit.StageComplete("classify", time.Since(stage).Milliseconds(), false, err.Error())
		return nil, fmt.Errorf("classify: %w", err)
	}
	audit.StageComplete("classify", time.Since(stage).Milliseconds(), true, "")

	stage = time.Now()
	snapshots, err := o.collector.Collect(ctx)
	if err != nil {
		audit.StageComplete("collect", time.Since(stage).Milliseconds(), false, err.Error())
		return nil, fmt.Errorf("collect: %w", err)
	}
	audit.StageComplete("collect", time.Since(stage).Milliseconds(), true, "")

	stage = time.Now()
	selected := o.selector.Select(ctx, set.DataByType, snapshots)
	audit.StageComplete("select", time.Since(stage).Milliseconds(), true, "")

	stage = time.Now()
	results, roomIDs := o.executor.Execute(ctx, worldID, selected)
	audit.StageComplete("execute", time.Since(stage).Milliseconds(), true, "")
	defer o.worlds.Cleanup(context.WithoutCancel(ctx), roomIDs)

	stage = time.Now()
	insight, used, err := o.insights.Generate(ctx, results, snapshots)
	if err != nil {
		audit.StageComplete("insight", time.Since(stage).Milliseconds(), false, err.Error())
		return nil, err
	}
	audit.StageComplete("insight", time.Since(stage).Milliseconds(), true, "")

	analysis := &types.Analysis{
		ID:               uuid.NewString(),
		AgentID:          agentID,
		CreatedAt:        time.Now().UTC(),
		Overview:         insight.Overview,
		Conditions:       insight.Conditions,
		Risk:             insight.Risk,
		Opportunities:    insight.Opportunities,
		CapabilitiesUsed: used,
	}

	stage = time.Now()
	recs := o.recommender.Generate(ctx, analysis.ID, insight, set.ActionByType)
	audit.StageComplete("recommend", time.Since(stage).Milliseconds(), true, "")

	if err := o.store.SaveAnalysis(analysis, recs); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}
	return analysis, nil
}
