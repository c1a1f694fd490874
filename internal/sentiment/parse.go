package sentiment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// extractJSON cuts the outermost object out of model output that may be
// wrapped in code fences or prose.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func field(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func parseResult(raw string) (Result, error) {
	body := extractJSON(raw)
	if body == "" {
		return Result{}, errors.New("no JSON object in response")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return Result{}, fmt.Errorf("invalid JSON in response: %w", err)
	}

	for _, name := range []string{"Score", "Sentiment", "Summary", "Keywords"} {
		if _, ok := field(m, name); !ok {
			return Result{}, fmt.Errorf("missing %s in response", name)
		}
	}

	var res Result
	sv, _ := field(m, "Score")
	switch v := sv.(type) {
	case float64:
		res.Score = v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Result{}, fmt.Errorf("invalid score %q", v)
		}
		res.Score = f
	default:
		return Result{}, fmt.Errorf("invalid score type %T", sv)
	}
	if res.Score < -1 || res.Score > 1 {
		return Result{}, fmt.Errorf("score %.2f out of range [-1, 1]", res.Score)
	}

	if v, _ := field(m, "Sentiment"); v != nil {
		res.Sentiment = normalizeLabel(fmt.Sprint(v))
	}
	if res.Sentiment == "" {
		res.Sentiment = Label(res.Score)
	}
	if v, _ := field(m, "Summary"); v != nil {
		res.Summary = strings.TrimSpace(fmt.Sprint(v))
	}
	if v, ok := field(m, "Reasoning"); ok && v != nil {
		res.Reasoning = strings.TrimSpace(fmt.Sprint(v))
	}
	kv, _ := field(m, "Keywords")
	switch v := kv.(type) {
	case []any:
		for _, k := range v {
			if s := strings.TrimSpace(fmt.Sprint(k)); s != "" {
				res.Keywords = append(res.Keywords, s)
			}
		}
	case string:
		for _, k := range strings.Split(v, ",") {
			if s := strings.TrimSpace(k); s != "" {
				res.Keywords = append(res.Keywords, s)
			}
		}
	}
	return res, nil
}

func normalizeLabel(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return Positive
	case "negative":
		return Negative
	case "neutral":
		return Neutral
	}
	return ""
}
