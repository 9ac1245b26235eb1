package remote

import (
	"encoding/json"
	"strings"

	"github.com/mentora-labs/mentora/internal/domain"
)

// Backends disagree about where a reply lives in the payload. The probes
// below are the single place that field-name variance is absorbed; everything
// past this file sees one canonical {content, error} shape.

var contentFields = []string{"response", "answer", "content", "result", "text", "output", "message"}

var errorFields = []string{"error", "error_message", "detail", "failure"}

var taskIDFields = []string{"task_id", "taskId", "id", "job_id"}

// notReadySentinels are the phrases workers use to say "keep polling".
var notReadySentinels = []string{
	"no result yet",
	"not ready",
	"pending",
	"queued",
	"in progress",
	"processing",
}

func probeContent(raw map[string]any) string {
	if s := probeString(raw, contentFields); s != "" {
		return s
	}
	// Some backends nest the reply one level down.
	if nested, ok := raw["data"].(map[string]any); ok {
		return probeString(nested, contentFields)
	}
	return ""
}

func probeError(raw map[string]any) string {
	if s := probeString(raw, errorFields); s != "" {
		return s
	}
	if nested, ok := raw["data"].(map[string]any); ok {
		return probeString(nested, errorFields)
	}
	return ""
}

func probeTaskID(raw map[string]any) string {
	return probeString(raw, taskIDFields)
}

func probeString(raw map[string]any, fields []string) string {
	for _, f := range fields {
		if v, ok := raw[f].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// normalizeStatus collapses the duck-typed status payload into one
// StatusResult. Missing or unrecognized status values are treated as
// not-ready, which keeps the poller in its retry loop instead of failing on a
// backend quirk.
func normalizeStatus(raw map[string]any) *StatusResult {
	status := probeString(raw, []string{"status", "state"})
	res := &StatusResult{State: classifyState(status)}

	switch res.State {
	case StateCompleted:
		res.Content = probeContent(raw)
		res.Complete = probeComplete(raw)
		res.Periods = probePeriods(raw)
	case StateFailed:
		res.Err = probeError(raw)
	case StateRunning:
		// Simulations publish partial results while still running.
		res.Periods = probePeriods(raw)
		res.Complete = probeComplete(raw)
	case StateNotReady:
	}

	return res
}

func classifyState(status string) TaskState {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case "completed", "complete", "done", "success", "succeeded", "finished":
		return StateCompleted
	case "failed", "error", "failure":
		return StateFailed
	case "running", "in_progress", "in progress":
		return StateRunning
	}
	for _, sentinel := range notReadySentinels {
		if s == sentinel {
			return StateNotReady
		}
	}
	return StateNotReady
}

func probeComplete(raw map[string]any) bool {
	for _, f := range []string{"complete", "is_complete", "simulation_complete"} {
		if v, ok := raw[f].(bool); ok && v {
			return true
		}
	}
	return false
}

// probePeriods extracts period-keyed partial results when present. The facet
// payload is re-marshaled through JSON so that whatever shape the backend
// sent lands as plain FacetRecord maps.
func probePeriods(raw map[string]any) []domain.PeriodPartial {
	v, ok := raw["periods"]
	if !ok {
		if nested, nok := raw["data"].(map[string]any); nok {
			v, ok = nested["periods"]
		}
		if !ok {
			return nil
		}
	}

	buf, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var partials []domain.PeriodPartial
	if err := json.Unmarshal(buf, &partials); err != nil {
		return nil
	}
	return partials
}
