package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/orchestrator"
	"github.com/fyrsmithlabs/orchestd/internal/workflow"
)

// featureView is the wire shape of a feature returned by the tools.
type featureView struct {
	ID           string `json:"id" jsonschema:"Feature identifier"`
	Prompt       string `json:"prompt" jsonschema:"Original feature prompt"`
	CurrentPhase string `json:"current_phase" jsonschema:"Current workflow phase"`
	Status       string `json:"status" jsonschema:"Feature status: active, blocked, completed, or abandoned"`
	Phases       int    `json:"phases_recorded" jsonschema:"Number of history entries"`
	CreatedAt    string `json:"created_at" jsonschema:"Creation timestamp, RFC 3339"`
	UpdatedAt    string `json:"updated_at" jsonschema:"Last update timestamp, RFC 3339"`
}

func viewOf(f *workflow.Feature) featureView {
	return featureView{
		ID:           f.ID,
		Prompt:       f.Prompt,
		CurrentPhase: f.CurrentPhase,
		Status:       string(f.Status),
		Phases:       len(f.History),
		CreatedAt:    f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    f.UpdatedAt.Format(time.RFC3339),
	}
}

type featureStartInput struct {
	Prompt string `json:"prompt" jsonschema:"required,Description of the feature to build"`
}

type featureStartOutput struct {
	Feature featureView `json:"feature" jsonschema:"The created feature"`
}

type featureNextActionInput struct {
	FeatureID string `json:"feature_id" jsonschema:"required,Feature identifier"`
}

type taskView struct {
	ID                   string   `json:"id" jsonschema:"Task identifier"`
	Prompt               string   `json:"prompt" jsonschema:"Prompt to execute"`
	RequiredCapabilities []string `json:"required_capabilities" jsonschema:"Capabilities an executor must hold"`
	Complexity           string   `json:"complexity" jsonschema:"Complexity tier: trivial, simple, moderate, complex, or epic"`
}

type featureNextActionOutput struct {
	FeatureID string    `json:"feature_id" jsonschema:"Feature identifier"`
	Status    string    `json:"status" jsonschema:"Feature status"`
	Phase     string    `json:"phase,omitempty" jsonschema:"Phase the task belongs to"`
	Task      *taskView `json:"task,omitempty" jsonschema:"Unit of work for the current phase"`
	Done      bool      `json:"done" jsonschema:"True when the feature is in a terminal state"`
}

type featureSubmitInput struct {
	FeatureID string `json:"feature_id" jsonschema:"required,Feature identifier"`
	Phase     string `json:"phase" jsonschema:"required,Phase the results belong to"`
	Summary   string `json:"summary" jsonschema:"Summary of the phase results"`
}

type featureSubmitOutput struct {
	Feature featureView `json:"feature" jsonschema:"The updated feature"`
}

type featureRunPhaseInput struct {
	FeatureID string `json:"feature_id" jsonschema:"required,Feature identifier"`
}

type featureRunPhaseOutput struct {
	Feature    featureView `json:"feature" jsonschema:"Feature after the run"`
	TaskStatus string      `json:"task_status" jsonschema:"Terminal task status: succeeded, failed, or skipped"`
	Executor   string      `json:"executor,omitempty" jsonschema:"Executor that produced the result"`
	Attempts   int         `json:"attempts" jsonschema:"Invocation attempts across the fallback chain"`
	Output     string      `json:"output,omitempty" jsonschema:"Task output"`
	Error      string      `json:"error,omitempty" jsonschema:"Task error, when failed"`
}

type featureAbandonInput struct {
	FeatureID string `json:"feature_id" jsonschema:"required,Feature identifier"`
	Reason    string `json:"reason" jsonschema:"Why the feature is being abandoned"`
}

type featureAbandonOutput struct {
	Feature featureView `json:"feature" jsonschema:"The abandoned feature"`
}

type featureListInput struct{}

type featureListOutput struct {
	Features []featureView `json:"features" jsonschema:"All known features, oldest first"`
}

type executorListInput struct{}

type executorListOutput struct {
	Executors []orchestrator.ExecutorStatus `json:"executors" jsonschema:"Registered executors with load and breaker state"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_start",
		Description: "Start a new feature at the first workflow phase",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args featureStartInput) (*mcp.CallToolResult, featureStartOutput, error) {
		start := time.Now()
		f, err := s.orch.StartFeature(ctx, args.Prompt)
		s.record(ctx, "feature_start", start, err)
		if err != nil {
			return nil, featureStartOutput{}, err
		}
		return nil, featureStartOutput{Feature: viewOf(f)}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_next_action",
		Description: "Derive the unit of work for a feature's current phase without changing state",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args featureNextActionInput) (*mcp.CallToolResult, featureNextActionOutput, error) {
		start := time.Now()
		na, err := s.orch.GetNextAction(ctx, args.FeatureID)
		s.record(ctx, "feature_next_action", start, err)
		if err != nil {
			return nil, featureNextActionOutput{}, err
		}
		out := featureNextActionOutput{
			FeatureID: na.FeatureID,
			Status:    na.Status,
			Phase:     na.Phase,
			Done:      na.Done,
		}
		if na.Task != nil {
			out.Task = &taskView{
				ID:                   na.Task.ID,
				Prompt:               na.Task.Prompt,
				RequiredCapabilities: na.Task.RequiredCapabilities,
				Complexity:           string(na.Task.Complexity),
			}
		}
		return nil, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_submit",
		Description: "Submit phase results and advance the feature to the next phase",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args featureSubmitInput) (*mcp.CallToolResult, featureSubmitOutput, error) {
		start := time.Now()
		f, err := s.orch.SubmitResults(ctx, args.FeatureID, args.Phase, args.Summary)
		s.record(ctx, "feature_submit", start, err)
		if err != nil {
			return nil, featureSubmitOutput{}, err
		}
		return nil, featureSubmitOutput{Feature: viewOf(f)}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_run_phase",
		Description: "Execute the current phase's task against the executor pool and submit its results on success",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args featureRunPhaseInput) (*mcp.CallToolResult, featureRunPhaseOutput, error) {
		start := time.Now()
		run, err := s.orch.RunPhase(ctx, args.FeatureID)
		s.record(ctx, "feature_run_phase", start, err)
		if err != nil {
			return nil, featureRunPhaseOutput{}, err
		}
		return nil, featureRunPhaseOutput{
			Feature:    viewOf(run.Feature),
			TaskStatus: string(run.Result.Status),
			Executor:   run.Result.AssignedExecutor,
			Attempts:   run.Result.Attempts,
			Output:     run.Result.Output,
			Error:      run.Result.Error,
		}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_abandon",
		Description: "Mark a feature abandoned; abandoned features are kept but never advanced",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args featureAbandonInput) (*mcp.CallToolResult, featureAbandonOutput, error) {
		start := time.Now()
		f, err := s.orch.AbandonFeature(ctx, args.FeatureID, args.Reason)
		s.record(ctx, "feature_abandon", start, err)
		if err != nil {
			return nil, featureAbandonOutput{}, err
		}
		return nil, featureAbandonOutput{Feature: viewOf(f)}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_list",
		Description: "List all known features",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args featureListInput) (*mcp.CallToolResult, featureListOutput, error) {
		start := time.Now()
		features := s.orch.ListFeatures()
		s.record(ctx, "feature_list", start, nil)
		out := featureListOutput{Features: make([]featureView, 0, len(features))}
		for _, f := range features {
			out.Features = append(out.Features, viewOf(f))
		}
		return nil, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "executor_list",
		Description: "List registered executors with their capabilities, load, and circuit breaker state",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args executorListInput) (*mcp.CallToolResult, executorListOutput, error) {
		start := time.Now()
		out := executorListOutput{Executors: s.orch.ListExecutors()}
		s.record(ctx, "executor_list", start, nil)
		return nil, out, nil
	})
}

// record logs and counts one tool invocation.
func (s *Server) record(ctx context.Context, tool string, start time.Time, err error) {
	recordInvocation(ctx, tool, time.Since(start), err)
	if err != nil {
		s.logger.Warn("tool invocation failed",
			zap.String("tool", tool),
			zap.Error(err))
	}
}
