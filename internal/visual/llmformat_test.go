package visual

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chartbridge/chartbridge/internal/schema"
)

func TestParseFieldBlocks(t *testing.T) {
	fields := []schema.TargetFieldSpec{{Name: "assessment"}, {Name: "plan"}}

	cases := []struct {
		name string
		text string
		want map[string]string
	}{
		{
			"bracket form",
			"[assessment]\nPneumonia, community acquired\n[plan]\nStart antibiotics\nFollow up in 3 days",
			map[string]string{
				"assessment": "Pneumonia, community acquired",
				"plan":       "Start antibiotics\nFollow up in 3 days",
			},
		},
		{
			"bare name fallback",
			"assessment\nPneumonia\nplan\nAntibiotics",
			map[string]string{"assessment": "Pneumonia", "plan": "Antibiotics"},
		},
		{
			"missing field omitted",
			"[assessment]\nPneumonia",
			map[string]string{"assessment": "Pneumonia"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseFieldBlocks(tc.text, fields)
			if len(got) != len(tc.want) {
				t.Fatalf("got = %v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestLLMFormat(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{
					"role":    "assistant",
					"content": "[summary]\nPatient stable",
				}},
			},
		})
	}))
	defer srv.Close()

	l := &LLMFormatter{Endpoint: srv.URL, Model: "test-model", APIKey: "test-key", Client: srv.Client()}
	out, err := l.Format(context.Background(), "raw note text", []schema.TargetFieldSpec{{Name: "summary", Description: "one-line summary"}})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if out["summary"] != "Patient stable" {
		t.Errorf("summary = %q", out["summary"])
	}

	if gotReq.Temperature != 0.3 {
		t.Errorf("temperature = %v", gotReq.Temperature)
	}
	if gotReq.MaxTokens != 500 {
		t.Errorf("max_tokens = %d", gotReq.MaxTokens)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %s", gotReq.Model)
	}
}

func TestLLMFormatRequiresAPIKey(t *testing.T) {
	l := &LLMFormatter{Endpoint: "http://localhost:1", Client: http.DefaultClient}
	if _, err := l.Format(context.Background(), "x", nil); err == nil {
		t.Fatal("missing API key must fail")
	}
}
