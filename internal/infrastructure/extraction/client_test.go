package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avolkov/docpipe/internal/core/domain"
)

func sampleRequest(feature domain.FeatureSet) domain.ExtractionRequest {
	return domain.ExtractionRequest{
		Document:       domain.DocumentRef{Bucket: "source", Key: "forms/app.pdf"},
		Feature:        feature,
		IdempotencyKey: "req-1",
		Output:         domain.OutputTarget{Bucket: "output", Prefix: "_detectText"},
		Notification:   domain.NotificationTarget{Subject: "extraction.completed", Role: "notifier"},
	}
}

func TestStartAnalysisJobForFormsFeature(t *testing.T) {
	var capturedPath string
	var captured startJobRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"job_id":"job-42"}`))
	}))
	defer server.Close()

	client := New(server.URL, 100, nil)
	jobID, err := client.StartJob(context.Background(), sampleRequest(domain.FeatureForms))
	if err != nil {
		t.Fatalf("StartJob() error = %v", err)
	}
	if jobID != "job-42" {
		t.Fatalf("unexpected job id %q", jobID)
	}
	if capturedPath != "/v1/analysis-jobs" {
		t.Fatalf("forms job must use analysis endpoint, got %s", capturedPath)
	}
	if len(captured.FeatureTypes) != 1 || captured.FeatureTypes[0] != "FORMS" {
		t.Fatalf("unexpected feature types %v", captured.FeatureTypes)
	}
	if captured.ClientRequestToken != "req-1" {
		t.Fatalf("idempotency key not forwarded: %q", captured.ClientRequestToken)
	}
	if captured.Output.Prefix != "_detectText" || captured.Notification.Subject != "extraction.completed" {
		t.Fatalf("targets not forwarded: %+v", captured)
	}
}

func TestStartTextDetectionJobForTextFeature(t *testing.T) {
	var capturedPath string
	var captured startJobRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"job_id":"job-7"}`))
	}))
	defer server.Close()

	client := New(server.URL, 100, nil)
	if _, err := client.StartJob(context.Background(), sampleRequest(domain.FeatureText)); err != nil {
		t.Fatalf("StartJob() error = %v", err)
	}
	if capturedPath != "/v1/text-detection-jobs" {
		t.Fatalf("text job must use text-detection endpoint, got %s", capturedPath)
	}
	if len(captured.FeatureTypes) != 0 {
		t.Fatalf("text detection takes no feature types, got %v", captured.FeatureTypes)
	}
}

func TestStartJobThrottleErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(server.URL, 100, nil)
	_, err := client.StartJob(context.Background(), sampleRequest(domain.FeatureTables))
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("throttling should surface as temporary, got %v", err)
	}
}

func TestStartJobRejectsEmptyJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(server.URL, 100, nil)
	if _, err := client.StartJob(context.Background(), sampleRequest(domain.FeatureForms)); err == nil {
		t.Fatal("expected error on empty job id")
	}
}
