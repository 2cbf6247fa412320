package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"ragdesk/internal/domain"
)

// Placeholder is the answer text used when a response carries no field we
// recognize. The backend's response shape evolves independently of this
// client, so an unknown shape is not an error.
const Placeholder = "Sorry, I couldn't find an answer."

// maxNesting bounds how deep {"answer": {"answer": ...}} is followed.
const maxNesting = 3

// normalize turns a 2xx response body into an Answer. It fails only when the
// body is not JSON at all.
func normalize(body []byte) (*domain.Answer, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("malformed response body: %w", err)
	}

	ans := &domain.Answer{Sources: []domain.Source{}}
	switch v := raw.(type) {
	case string:
		ans.Text = v
	case map[string]any:
		probe(v, ans, 0)
	}
	if strings.TrimSpace(ans.Text) == "" {
		ans.Text = Placeholder
	}
	return ans, nil
}

// probe fills ans from the fields of one response object, first match wins:
// final_answer, then answer (string or nested object), then message.
func probe(obj map[string]any, ans *domain.Answer, depth int) {
	if ans.AnswerSource == "" {
		ans.AnswerSource = stringField(obj, "answer_source")
	}
	if len(ans.Sources) == 0 {
		ans.Sources = parseSources(obj["sources"])
	}

	if s := stringField(obj, "final_answer"); s != "" {
		ans.Text = s
		return
	}

	switch a := obj["answer"].(type) {
	case string:
		if a != "" {
			ans.Text = a
			return
		}
	case map[string]any:
		if depth < maxNesting {
			applySourceDoc(a["source_doc"], ans)
			probe(a, ans, depth+1)
			if ans.Text != "" {
				return
			}
		}
	}

	if s := stringField(obj, "message"); s != "" {
		ans.Text = s
	}
}

// applySourceDoc accepts either a provenance label or a list of documents.
func applySourceDoc(v any, ans *domain.Answer) {
	switch doc := v.(type) {
	case string:
		if ans.AnswerSource == "" {
			ans.AnswerSource = doc
		}
	case []any:
		if len(ans.Sources) == 0 {
			ans.Sources = parseSources(doc)
		}
	}
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func parseSources(v any) []domain.Source {
	items, ok := v.([]any)
	if !ok {
		return []domain.Source{}
	}
	sources := make([]domain.Source, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		src := domain.Source{
			Name:    stringField(obj, "source_name"),
			Excerpt: stringField(obj, "page_content"),
		}
		if src.Name == "" {
			src.Name = stringField(obj, "source")
		}
		if md, ok := obj["metadata"].(map[string]any); ok {
			src.Metadata = md
		} else {
			src.Metadata = map[string]any{}
		}
		sources = append(sources, src)
	}
	return sources
}
