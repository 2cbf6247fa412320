package travel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// ErrorSummary replaces the summary when the planner call fails.
const ErrorSummary = "Error fetching summary."

// Planner posts a planner query and returns the raw response body.
type Planner interface {
	PlanTrip(ctx context.Context, query any) ([]byte, error)
}

// ToolMessage is one entry of the planner's tool-invocation log.
type ToolMessage struct {
	ToolName string `json:"tool_name,omitempty"`
	Role     string `json:"role,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Plan is a planner result.
type Plan struct {
	Summary       string
	Messages      []ToolMessage
	FlightsOnward string // indented JSON, empty when absent
	FlightsReturn string
	Failed        bool
}

// Request validates the form, calls the planner and parses the result. A
// failed call still yields a Plan carrying ErrorSummary.
func Request(ctx context.Context, p Planner, form Form, logger *slog.Logger) (Plan, error) {
	if err := form.Validate(); err != nil {
		return Plan{}, err
	}
	body, err := p.PlanTrip(ctx, form)
	if err != nil {
		logger.Warn("trip planner failed", "destination", form.Destination, "error", err)
		return Plan{Summary: ErrorSummary, Failed: true}, nil
	}
	plan, err := ParsePlan(body)
	if err != nil {
		logger.Warn("trip planner returned an unreadable body", "error", err)
		return Plan{Summary: ErrorSummary, Failed: true}, nil
	}
	return plan, nil
}

// ParsePlan extracts the summary from a string body, else final_answer, else
// summary, else the indented body itself.
func ParsePlan(body []byte) (Plan, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Plan{}, fmt.Errorf("malformed planner response: %w", err)
	}

	var plan Plan
	switch v := raw.(type) {
	case string:
		plan.Summary = v
	case map[string]any:
		if s, _ := v["final_answer"].(string); s != "" {
			plan.Summary = s
		} else if s, _ := v["summary"].(string); s != "" {
			plan.Summary = s
		} else {
			plan.Summary = indent(v)
		}
		plan.Messages = parseMessages(v["messages"])
	default:
		plan.Summary = indent(raw)
	}

	onward, ret := flightDetails(plan.Summary)
	plan.FlightsOnward = onward
	plan.FlightsReturn = ret
	return plan, nil
}

func parseMessages(v any) []ToolMessage {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]ToolMessage, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		m := ToolMessage{}
		m.ToolName, _ = obj["tool_name"].(string)
		m.Role, _ = obj["role"].(string)
		switch c := obj["content"].(type) {
		case string:
			m.Content = c
		case nil:
		default:
			m.Content = indent(c)
		}
		out = append(out, m)
	}
	return out
}

// flightDetails returns the onward/return flight blocks when the summary is
// itself a JSON object carrying them.
func flightDetails(summary string) (onward, ret string) {
	trimmed := strings.TrimSpace(summary)
	if !strings.HasPrefix(trimmed, "{") {
		return "", ""
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal([]byte(trimmed), &obj) != nil {
		return "", ""
	}
	return indentRaw(obj["flights_onward"]), indentRaw(obj["flights_return"])
}

func indent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func indentRaw(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
