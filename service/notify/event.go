/*
 * @module service/notify/event
 * @description Run-completed events published after every mining run or sweep finishes
 * @architecture Messaging layer - event contract and publisher fan-out
 * @stateFlow run finishes -> RunCompleted built -> every configured Publisher
 * @rules Publishing never fails a run; errors are logged by the caller
 * @dependencies github.com/segmentio/kafka-go, github.com/eclipse/paho.mqtt.golang
 * @refs kafka_publisher.go, mqtt_publisher.go, service/mining/service.go
 */

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

// EventRunCompleted is the event type header value.
const EventRunCompleted = "mining.run.completed"

// maxSummaryRules bounds the rules embedded in an event.
const maxSummaryRules = 5

// RuleSummary is the compact form of a rule carried in events.
type RuleSummary struct {
	Rule       string   `json:"rule"`
	Support    float64  `json:"support"`
	Confidence float64  `json:"confidence"`
	Lift       float64  `json:"lift"`
	Conviction *float64 `json:"conviction"`
	Variant    string   `json:"variant,omitempty"`
}

// RunCompleted describes a finished run.
type RunCompleted struct {
	Type       string        `json:"type"`
	RunID      string        `json:"run_id"`
	Kind       string        `json:"kind"`
	Label      string        `json:"label"`
	Status     string        `json:"status"`
	RuleCount  int           `json:"rule_count"`
	DurationMs int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
	TopRules   []RuleSummary `json:"top_rules,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

// NewRunCompleted builds an event summarising the best ranked rules.
func NewRunCompleted(runID, kind, label, status string, rules []association.Rule, duration time.Duration, runErr error) RunCompleted {
	ev := RunCompleted{
		Type:       EventRunCompleted,
		RunID:      runID,
		Kind:       kind,
		Label:      label,
		Status:     status,
		RuleCount:  len(rules),
		DurationMs: duration.Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	for i, r := range rules {
		if i == maxSummaryRules {
			break
		}
		s := RuleSummary{
			Rule:       r.String(),
			Support:    r.Support,
			Confidence: r.Confidence,
			Lift:       r.Lift,
			Variant:    r.Variant,
		}
		if !association.IsUnbounded(r.Conviction) {
			c := r.Conviction
			s.Conviction = &c
		}
		ev.TopRules = append(ev.TopRules, s)
	}
	return ev
}

func (e RunCompleted) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers run events to one transport.
type Publisher interface {
	Publish(ctx context.Context, event RunCompleted) error
	Close() error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event RunCompleted) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, RunCompleted) error { return nil }
func (Nop) Close() error                                { return nil }
