package domain

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// PoisonPill is the sentinel payload that stops the consumption loop. It is
// the only clean in-band shutdown path.
const PoisonPill = "DIE"

// TaskKind is the tagged variant of a task message. The wire format uses a
// string tag ("rollback" or absent); decoding maps it onto this enum so
// dispatch can switch exhaustively instead of comparing strings.
type TaskKind int

const (
	// KindForward reserves tokens and advances the saga downstream.
	KindForward TaskKind = iota
	// KindCompensate restores tokens and chains the rollback upstream.
	KindCompensate
)

const rollbackTag = "rollback"

// Task is one unit of saga work. All correlation fields are bound at decode
// time, before any step that can fail, so the failure and compensation
// branches always have valid data to report.
type Task struct {
	Kind        TaskKind
	OrderID     int64
	UserID      int64
	NumTokens   int64
	Traceparent string
}

type wireTask struct {
	Task        string `json:"task,omitempty"`
	OrderID     int64  `json:"order_id"`
	UserID      int64  `json:"user_id"`
	NumTokens   int64  `json:"num_tokens"`
	Traceparent string `json:"traceparent,omitempty"`
}

// DecodeTask parses a raw queue payload. Payloads that are not valid JSON,
// or carry an unknown task tag, fail with a wrapped decode error; callers
// report and skip them without stopping the loop.
func DecodeTask(payload []byte) (Task, error) {
	var w wireTask
	if err := json.Unmarshal(payload, &w); err != nil {
		return Task{}, errors.Wrap(err, "decode task payload")
	}

	var kind TaskKind
	switch w.Task {
	case "":
		kind = KindForward
	case rollbackTag:
		kind = KindCompensate
	default:
		return Task{}, errors.Errorf("decode task payload: unknown task tag %q", w.Task)
	}

	if w.NumTokens < 0 {
		return Task{}, errors.Errorf("decode task payload: negative num_tokens %d", w.NumTokens)
	}

	return Task{
		Kind:        kind,
		OrderID:     w.OrderID,
		UserID:      w.UserID,
		NumTokens:   w.NumTokens,
		Traceparent: w.Traceparent,
	}, nil
}

// Encode renders the task back to its wire form.
func (t Task) Encode() ([]byte, error) {
	w := wireTask{
		OrderID:     t.OrderID,
		UserID:      t.UserID,
		NumTokens:   t.NumTokens,
		Traceparent: t.Traceparent,
	}
	if t.Kind == KindCompensate {
		w.Task = rollbackTag
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return nil, errors.Wrap(err, "encode task")
	}
	return raw, nil
}

// Rollback builds the compensation counterpart of a task, carrying the same
// correlation fields. The traceparent is left empty; the sender injects a
// fresh one from its own span before enqueueing.
func (t Task) Rollback() Task {
	return Task{
		Kind:      KindCompensate,
		OrderID:   t.OrderID,
		UserID:    t.UserID,
		NumTokens: t.NumTokens,
	}
}
