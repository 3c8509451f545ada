package providers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/providers"
)

type fixedEmbedder struct {
	vector []float32
	err    error
}

func (e fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return e.vector, e.err
}

func TestEmbeddingClient_ParsesVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("auth = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	c := providers.NewEmbeddingClient(providers.EmbeddingConfig{
		BaseURL: srv.URL, APIKey: "key-1", Model: "text-embedding-3-large",
	})
	vec, err := c.Embed(context.Background(), "fraud policy query")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("vector = %v", vec)
	}
}

func TestQdrant_SearchMapsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/fraud_policies/points/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Query []float32 `json:"query"`
			Limit int       `json:"limit"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Query) != 2 || req.Limit != 2 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"points": []map[string]interface{}{
					{"score": 0.91, "payload": map[string]string{
						"policy_id": "FP-01",
						"rule":      "Amount > 3x usual average and off-hours: CHALLENGE",
						"version":   "2025.1",
					}},
					{"score": 0.84, "payload": map[string]string{
						"policy_id": "FP-02",
						"rule":      "International transaction on a new device: ESCALATE_TO_HUMAN",
						"version":   "2025.1",
					}},
				},
			},
		})
	}))
	defer srv.Close()

	q := providers.NewQdrant(providers.QdrantConfig{
		BaseURL: srv.URL, Collection: "fraud_policies",
	}, fixedEmbedder{vector: []float32{0.5, 0.5}}, zap.NewNop())

	got, err := q.Search(context.Background(), "fraud policy for 900 PEN")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d", len(got))
	}
	if got[0].Rank != 1 || got[0].PolicyID != "FP-01" || got[0].Similarity != 0.91 {
		t.Errorf("first result = %+v", got[0])
	}
	if got[1].Rank != 2 || got[1].PolicyID != "FP-02" {
		t.Errorf("second result = %+v", got[1])
	}
	if got[0].RetrievedAt.IsZero() {
		t.Error("retrieved_at not set")
	}
}

func TestQdrant_ServerErrorSurfacesToCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := providers.NewQdrant(providers.QdrantConfig{
		BaseURL: srv.URL, Collection: "fraud_policies",
	}, fixedEmbedder{vector: []float32{0.5}}, zap.NewNop())

	if _, err := q.Search(context.Background(), "query"); err == nil {
		t.Fatal("expected error from failing backend")
	}
}

func TestThreatFeed_ParsesThreats(t *testing.T) {
	content := `{"threats":[
		{"url":"https://news.example/fraud1","summary":"Card testing wave","fraud_type":"card_testing"},
		{"url":"https://news.example/fraud2","summary":"Device spoofing ring","fraud_type":"device_fraud"}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
	defer srv.Close()

	feed := providers.NewThreatFeed(providers.ThreatFeedConfig{
		BaseURL: srv.URL, APIKey: "key", Model: "sonar-pro",
	}, zap.NewNop())

	got, err := feed.Search(context.Background(), "fraud in PE")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("threats = %d", len(got))
	}
	if got[0].Source != "https://news.example/fraud1" || got[0].Category != "card_testing" {
		t.Errorf("first threat = %+v", got[0])
	}
}

func TestThreatFeed_UnreadableContentIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "here are some threats I found..."}},
			},
		})
	}))
	defer srv.Close()

	feed := providers.NewThreatFeed(providers.ThreatFeedConfig{
		BaseURL: srv.URL, Model: "sonar-pro",
	}, zap.NewNop())

	if _, err := feed.Search(context.Background(), "query"); err == nil {
		t.Fatal("expected error on unreadable content")
	}
}
