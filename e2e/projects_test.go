package e2e

import (
	"context"
	"net/http"
	"testing"
)

func TestCreateProject(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/projects", validProjectBody, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)

	body := parseJSON(t, resp)
	if body["name"] != "Night Drive" {
		t.Errorf("expected name 'Night Drive', got %v", body["name"])
	}
	if body["status"] != "draft" {
		t.Errorf("expected status 'draft', got %v", body["status"])
	}
	spec, ok := body["specification"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected specification object, got %v", body["specification"])
	}
	if spec["genre"] != "electronic" {
		t.Errorf("expected genre 'electronic', got %v", spec["genre"])
	}
}

func TestCreateProject_Validation(t *testing.T) {
	ta := setupApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{not json`},
		{"missing name", `{"description":"x","genre":"pop","mood":"chill"}`},
		{"unknown genre", `{"name":"a","description":"x","genre":"polka","mood":"chill"}`},
		{"tempo out of range", `{"name":"a","description":"x","genre":"pop","mood":"chill","tempo":300}`},
		{"invalid key", `{"name":"a","description":"x","genre":"pop","mood":"chill","key":"H locrian"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := doRequest(ta.app, http.MethodPost, "/api/projects", tt.body, nil)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			assertStatus(t, resp, http.StatusBadRequest)

			body := parseJSON(t, resp)
			errObj, _ := body["error"].(map[string]interface{})
			if errObj["code"] != "VALIDATION_ERROR" {
				t.Errorf("expected VALIDATION_ERROR, got %v", body["error"])
			}
		})
	}
}

func TestListProjects(t *testing.T) {
	ta := setupApp(t)
	createProject(t, ta.app)
	createProject(t, ta.app)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/projects", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if total, _ := body["total"].(float64); total != 2 {
		t.Errorf("expected 2 projects, got %v", body["total"])
	}
}

func TestGetProject(t *testing.T) {
	ta := setupApp(t)
	id := createProject(t, ta.app)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/projects/"+id, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["id"] != id {
		t.Errorf("expected id %s, got %v", id, body["id"])
	}
}

func TestGetProject_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/projects/does-not-exist", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestGenerate_QueuesJob(t *testing.T) {
	ta := setupApp(t)
	id := createProject(t, ta.app)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/projects/"+id+"/generate", `{"prompt":"neon city lights"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	body := parseJSON(t, resp)
	jobID, _ := body["jobId"].(string)
	if jobID == "" {
		t.Fatalf("expected jobId, got %v", body)
	}
	if body["status"] != "queued" {
		t.Errorf("expected status 'queued', got %v", body["status"])
	}
	if len(ta.queue.tasks) != 1 {
		t.Fatalf("expected 1 queued task, got %d", len(ta.queue.tasks))
	}

	resp, err = doRequest(ta.app, http.MethodGet, "/api/jobs/"+jobID, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	job := parseJSON(t, resp)
	if job["status"] != "queued" {
		t.Errorf("expected job status 'queued', got %v", job["status"])
	}
	if job["projectId"] != id {
		t.Errorf("expected projectId %s, got %v", id, job["projectId"])
	}
}

func TestGenerate_EmptyBody(t *testing.T) {
	ta := setupApp(t)
	id := createProject(t, ta.app)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/projects/"+id+"/generate", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
}

func TestGenerate_UnknownProject(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/projects/missing/generate", `{}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
	if len(ta.queue.tasks) != 0 {
		t.Errorf("expected no queued tasks, got %d", len(ta.queue.tasks))
	}
}

func TestGenerate_RunInProgress(t *testing.T) {
	ta := setupApp(t)
	id := createProject(t, ta.app)

	if _, _, err := ta.registry.Begin(id); err != nil {
		t.Fatalf("failed to begin run: %v", err)
	}

	for _, path := range []string{"/generate", "/iterate"} {
		resp, err := doRequest(ta.app, http.MethodPost, "/api/projects/"+id+path, `{"feedback":"louder"}`, nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusConflict)

		body := parseJSON(t, resp)
		errObj, _ := body["error"].(map[string]interface{})
		if errObj["code"] != "RUN_IN_PROGRESS" {
			t.Errorf("expected RUN_IN_PROGRESS for %s, got %v", path, body["error"])
		}
	}

	resp, err := doRequest(ta.app, http.MethodDelete, "/api/projects/"+id, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)
}

func TestIterate(t *testing.T) {
	ta := setupApp(t)
	id := createProject(t, ta.app)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/projects/"+id+"/iterate", `{}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	resp, err = doRequest(ta.app, http.MethodPost, "/api/projects/"+id+"/iterate", `{"feedback":"more reverb on the pad","targetSection":"chorus"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	if len(ta.queue.tasks) != 1 {
		t.Errorf("expected 1 queued task, got %d", len(ta.queue.tasks))
	}
}

func TestProgressAndStages_AfterRun(t *testing.T) {
	ta := setupApp(t)
	id := createProject(t, ta.app)

	result := ta.orch.Generate(context.Background(), id, "neon city lights")
	if !result.Success {
		t.Fatalf("expected generation to succeed, got %s", result.ErrorMessage)
	}

	resp, err := doRequest(ta.app, http.MethodGet, "/api/projects/"+id+"/progress", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	progress := parseJSON(t, resp)
	if progress["stage"] != "complete" {
		t.Errorf("expected stage 'complete', got %v", progress["stage"])
	}
	if progress["active"] != false {
		t.Errorf("expected inactive run, got %v", progress["active"])
	}
	if progress["progress"] != 1.0 {
		t.Errorf("expected progress 1.0, got %v", progress["progress"])
	}

	resp, err = doRequest(ta.app, http.MethodGet, "/api/projects/"+id+"/stages", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	stages := parseJSON(t, resp)
	if stages["current"] != "awaiting_feedback" {
		t.Errorf("expected current stage 'awaiting_feedback', got %v", stages["current"])
	}
	history, _ := stages["history"].([]interface{})
	if len(history) == 0 {
		t.Error("expected a non-empty stage history")
	}

	resp, err = doRequest(ta.app, http.MethodGet, "/api/projects/"+id, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	project := parseJSON(t, resp)
	if project["status"] != "complete" {
		t.Errorf("expected stored status 'complete', got %v", project["status"])
	}
	if stems, _ := project["stems"].([]interface{}); len(stems) != 4 {
		t.Errorf("expected 4 stems, got %d", len(stems))
	}
}

func TestProgress_NoRun(t *testing.T) {
	ta := setupApp(t)
	id := createProject(t, ta.app)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/projects/"+id+"/progress", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["stage"] != "draft" {
		t.Errorf("expected stage 'draft', got %v", body["stage"])
	}
	if body["active"] != false {
		t.Errorf("expected inactive, got %v", body["active"])
	}

	resp, err = doRequest(ta.app, http.MethodGet, "/api/projects/"+id+"/stages", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestDeleteProject(t *testing.T) {
	ta := setupApp(t)
	id := createProject(t, ta.app)

	resp, err := doRequest(ta.app, http.MethodDelete, "/api/projects/"+id, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNoContent)

	resp, err = doRequest(ta.app, http.MethodDelete, "/api/projects/"+id, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestGetJob_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/jobs/unknown-job", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}
