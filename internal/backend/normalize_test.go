package backend

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantText   string
		wantSource string
		wantDocs   int
	}{
		{"final answer", `{"final_answer": "A", "answer_source": "web"}`, "A", "web", 0},
		{"final answer wins over answer", `{"final_answer": "A", "answer": "B"}`, "A", "", 0},
		{"empty final answer falls through", `{"final_answer": "", "answer": "B"}`, "B", "", 0},
		{"plain answer", `{"answer": "Successfully ingested 4 chunks."}`, "Successfully ingested 4 chunks.", "", 0},
		{"nested answer", `{"answer": {"answer": "nested", "source_doc": "milvus"}}`, "nested", "milvus", 0},
		{"nested answer with documents", `{"answer": {"answer": "n", "source_doc": [{"source_name": "a"}, {"source_name": "b"}]}}`, "n", "", 2},
		{"nested sources list", `{"answer": {"answer": "n", "sources": [{"source": "x.pdf", "page_content": "..."}]}}`, "n", "", 1},
		{"top-level provenance wins", `{"answer": {"answer": "n", "source_doc": "inner"}, "answer_source": "outer"}`, "n", "outer", 0},
		{"message fallback", `{"message": "File upload started.", "job_id": "1"}`, "File upload started.", "", 0},
		{"bare string", `"just text"`, "just text", "", 0},
		{"unknown shape", `{"result": 42}`, Placeholder, "", 0},
		{"null answer", `{"answer": null, "answer_source": null}`, Placeholder, "", 0},
		{"array body", `[1, 2, 3]`, Placeholder, "", 0},
		{"whitespace answer", `{"answer": "   "}`, Placeholder, "", 0},
		{"non-object sources ignored", `{"answer": "a", "sources": ["x", 1]}`, "a", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ans, err := normalize([]byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ans.Text != tt.wantText {
				t.Errorf("text = %q, want %q", ans.Text, tt.wantText)
			}
			if ans.AnswerSource != tt.wantSource {
				t.Errorf("answer source = %q, want %q", ans.AnswerSource, tt.wantSource)
			}
			if len(ans.Sources) != tt.wantDocs {
				t.Errorf("sources = %d, want %d", len(ans.Sources), tt.wantDocs)
			}
			if ans.Sources == nil {
				t.Error("sources must never be nil")
			}
		})
	}
}

func TestNormalize_Malformed(t *testing.T) {
	if _, err := normalize([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed body")
	}
}
