package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newEmbedderAgainst(t *testing.T, handler http.HandlerFunc) *JinaEmbedder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewJinaEmbedder(&EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "jina-clip-v2",
		Dimensions: 4,
	})
}

func TestJinaEmbedderEmbedText(t *testing.T) {
	var gotReq jinaRequest
	embedder := newEmbedderAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3,0.4],"index":0}]}`))
	})

	vec, err := embedder.EmbedText(context.Background(), "грустный кот", EmbedPurposeQuery)
	if err != nil {
		t.Fatalf("EmbedText failed: %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("Got %d dimensions, want 4", len(vec))
	}
	if gotReq.Task != "retrieval.query" {
		t.Errorf("Got task %q, want retrieval.query", gotReq.Task)
	}
	if !gotReq.Normalized {
		t.Error("Request must ask for normalized vectors")
	}
}

func TestJinaEmbedderCrossModalOmitsTask(t *testing.T) {
	var gotReq jinaRequest
	embedder := newEmbedderAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3,0.4],"index":0}]}`))
	})

	if _, err := embedder.EmbedText(context.Background(), "cat", EmbedPurposeCrossModal); err != nil {
		t.Fatalf("EmbedText failed: %v", err)
	}
	if gotReq.Task != "" {
		t.Errorf("Cross-modal embedding must not set a task, got %q", gotReq.Task)
	}
}

func TestJinaEmbedderSurfacesErrorDetail(t *testing.T) {
	embedder := newEmbedderAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"input is too long"}`))
	})

	_, err := embedder.EmbedText(context.Background(), "cat", EmbedPurposeQuery)
	if err == nil {
		t.Fatal("Expected an error for a rejected request")
	}
	if !strings.Contains(err.Error(), "input is too long") {
		t.Errorf("Error %q should carry the API's detail message", err)
	}
}

func TestJinaEmbedderRejectsDimensionMismatch(t *testing.T) {
	embedder := newEmbedderAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2],"index":0}]}`))
	})

	if _, err := embedder.EmbedText(context.Background(), "cat", EmbedPurposeQuery); err == nil {
		t.Fatal("Expected an error for a mis-sized embedding")
	}
}
