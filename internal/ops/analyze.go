package ops

import (
	"context"
	"database/sql"

	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/errors"
	"github.com/rfontain/glimpse/internal/pipeline"
)

// AnalyzeInput contains parameters for the Analyze operation.
type AnalyzeInput struct {
	SessionID *string // optional scope; nil analyzes across sessions
	Limit     int     // capture groups to analyze; 0 means all pending
}

// AnalyzeOutput contains the result of the Analyze operation.
type AnalyzeOutput struct {
	Analyzed  int `json:"analyzed"`
	Remaining int `json:"remaining"`
}

// Analyze runs an analysis pass over pending screenshots. Remaining
// counts what is still unanalyzed afterwards, which is nonzero when a
// limit was hit, the pass was canceled, or some groups failed.
func Analyze(ctx context.Context, ctrl *pipeline.Controller, database *sql.DB, input AnalyzeInput) (*AnalyzeOutput, error) {
	if input.Limit < 0 {
		return nil, errors.NewInvalidRequest("limit must not be negative")
	}

	analyzed, err := ctrl.Analyze(ctx, input.SessionID, input.Limit)
	if err != nil {
		return nil, err
	}

	remaining, err := db.CountUnanalyzedScreenshots(database, input.SessionID)
	if err != nil {
		return nil, err
	}
	return &AnalyzeOutput{Analyzed: analyzed, Remaining: remaining}, nil
}

// AnalyzeCancelOutput contains the result of the AnalyzeCancel operation.
type AnalyzeCancelOutput struct {
	Canceled bool `json:"canceled"`
}

// AnalyzeCancel asks the in-flight analysis pass to stop after its
// current capture group. Canceled is false when nothing was running.
func AnalyzeCancel(ctrl *pipeline.Controller) *AnalyzeCancelOutput {
	return &AnalyzeCancelOutput{Canceled: ctrl.CancelAnalysis()}
}
