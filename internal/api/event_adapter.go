package api

import (
	"context"

	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"
)

// SSEEventBroadcaster adapts the SSEHub to the engine's progress and result ports
type SSEEventBroadcaster struct {
	sseHub *SSEHub
}

// NewSSEEventBroadcaster creates a new SSE event broadcaster
func NewSSEEventBroadcaster(sseHub *SSEHub) *SSEEventBroadcaster {
	return &SSEEventBroadcaster{sseHub: sseHub}
}

// Progress implements ports.ProgressReporter
func (seb *SSEEventBroadcaster) Progress(runID core.RunID, completed, total int) {
	progress := 1.0
	if total > 0 {
		progress = float64(completed) / float64(total)
	}
	seb.sseHub.Broadcast(ScreeningEvent{
		SessionID: runID.String(),
		EventType: EventProgress,
		Completed: completed,
		Total:     total,
		Progress:  progress,
	})
}

// Report implements ports.ResultReporter with a final completed event
func (seb *SSEEventBroadcaster) Report(ctx context.Context, run *screening.ScreeningRun) error {
	data := map[string]interface{}{
		"passedThreshold":      run.PassedThreshold,
		"failed":               run.Failed,
		"cancelled":            run.Cancelled,
		"truncatedFrom":        run.TruncatedFrom,
		"processingDurationMs": float64(run.ProcessingDuration.Microseconds()) / 1000,
	}
	if best, ok := run.Best(); ok {
		data["topSmiles"] = best.SMILES
		data["topAffinity"] = best.Affinity
	}
	seb.sseHub.Broadcast(ScreeningEvent{
		SessionID: run.ID.String(),
		EventType: EventCompleted,
		Completed: run.Attempted,
		Total:     run.TotalScreened,
		Progress:  1,
		Data:      data,
	})
	return nil
}
