package graph

import (
	errx "github.com/dashgpt/server/internal/core/error"
	"github.com/dashgpt/server/internal/metrics"
	logx "github.com/dashgpt/server/pkg/logger"
)

// State is the stage a pipeline run is in.
type State string

const (
	StateIdle           State = "idle"
	StateRetrieving     State = "retrieving"
	StatePromptBuilding State = "prompt_building"
	StateStreaming      State = "streaming"
	StateFinalizing     State = "finalizing"
)

// tracker follows one run through the states.
type tracker struct {
	conversationID string
	state          State
	hook           func(conversationID string, from, to State)
}

func (r *Runner) newTracker(conversationID string) *tracker {
	return &tracker{conversationID: conversationID, state: StateIdle, hook: r.onTransition}
}

func (t *tracker) to(next State) {
	if t.state == next {
		return
	}
	prev := t.state
	t.state = next
	logx.Debug().Str("conversation_id", t.conversationID).Str("from", string(prev)).Str("to", string(next)).Msg("pipeline transition")
	if t.hook != nil {
		t.hook(t.conversationID, prev, next)
	}
}

// fail moves the run back to Idle and wraps err as a request failure at stage.
func (t *tracker) fail(stage State, err error) error {
	logx.Error().Err(err).Str("conversation_id", t.conversationID).Str("stage", string(stage)).Msg("pipeline failed")
	metrics.IncPipeline(string(stage), "failed")
	t.to(StateIdle)
	return errx.RequestFailed(string(stage), err)
}
