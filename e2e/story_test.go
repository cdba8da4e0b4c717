package e2e

import (
	"net/http"
	"testing"
)

func TestStoryCreate_Accepted(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"title": "The Lighthouse Keeper",
		"description": "A keeper discovers the light attracts more than ships."
	}`

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/stories", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["storyId"] == "" || result["storyId"] == nil {
		t.Error("expected a storyId in the response")
	}
	if result["status"] != "processing" {
		t.Errorf("expected status processing, got %v", result["status"])
	}
}

func TestStoryCreate_NoAuth(t *testing.T) {
	ta := setupApp(t)

	body := `{"title": "Untitled", "description": "A story."}`

	resp, err := doRequest(ta.app, http.MethodPost, "/api/stories", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
	assertErrorCode(t, resp, "UNAUTHORIZED")
}

func TestStoryCreate_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	// Missing description
	body := `{"title": "Only a title"}`

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/stories", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorCode(t, resp, "VALIDATION_ERROR")
}

func TestStoryGet_Ownership(t *testing.T) {
	ta := setupApp(t)
	story := seedStory(t, ta, testUserID, "completed", "Once upon a time.")

	// Owner sees the story
	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/stories/"+story.ID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["id"] != story.ID {
		t.Errorf("expected story %s, got %v", story.ID, result["id"])
	}

	// A different user is rejected
	resp, err = doUserRequest(t, ta.app, "someone-else", http.MethodGet, "/api/stories/"+story.ID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusForbidden)
	assertErrorCode(t, resp, "FORBIDDEN")
}

func TestStoryGet_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/stories/does-not-exist", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
	assertErrorCode(t, resp, "NOT_FOUND")
}

func TestStoryList_OnlyOwn(t *testing.T) {
	ta := setupApp(t)
	seedStory(t, ta, testUserID, "completed", "Mine.")
	seedStory(t, ta, "someone-else", "completed", "Not mine.")

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/stories", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)
	listed := parseJSONArray(t, resp)
	if len(listed) != 1 {
		t.Fatalf("expected 1 story for the caller, got %d", len(listed))
	}
	mine, ok := listed[0].(map[string]interface{})
	if !ok {
		t.Fatal("story is not an object")
	}
	if mine["userId"] != testUserID {
		t.Errorf("expected the caller's story, got owner %v", mine["userId"])
	}
}

func TestScriptUpdate_Success(t *testing.T) {
	ta := setupApp(t)
	story := seedStory(t, ta, testUserID, "completed", "Old draft.")

	body := `{"script": "A fully rewritten narration."}`
	resp, err := doAuthRequest(t, ta.app, http.MethodPut, "/api/stories/"+story.ID+"/script", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["script"] != "A fully rewritten narration." {
		t.Errorf("expected updated script, got %v", result["script"])
	}
	if result["status"] != "completed" {
		t.Errorf("expected status completed, got %v", result["status"])
	}
}

func TestScriptUpdate_RejectedWhileProcessing(t *testing.T) {
	ta := setupApp(t)
	story := seedStory(t, ta, testUserID, "processing", "")

	body := `{"script": "Should not apply."}`
	resp, err := doAuthRequest(t, ta.app, http.MethodPut, "/api/stories/"+story.ID+"/script", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusConflict)
	assertErrorCode(t, resp, "CONFLICT")
}

func TestStoryReview_RequiresScript(t *testing.T) {
	ta := setupApp(t)
	story := seedStory(t, ta, testUserID, "draft", "")

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/stories/"+story.ID+"/review", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusConflict)
	assertErrorCode(t, resp, "CONFLICT")
}

func TestStoryReview_UnconfiguredUpstream(t *testing.T) {
	ta := setupApp(t)
	story := seedStory(t, ta, testUserID, "completed", "A script worth reviewing.")

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/stories/"+story.ID+"/review", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// Text generation is unconfigured in e2e, so the editorial pass is a 502
	assertStatus(t, resp, http.StatusBadGateway)
	assertErrorCode(t, resp, "UPSTREAM_ERROR")
}

func TestStoryClone_CopiesConvergedSegments(t *testing.T) {
	ta := setupApp(t)
	story := seedStory(t, ta, testUserID, "completed", "The original tale.")
	seedSegment(t, ta, story.ID, 0)
	seedSegment(t, ta, story.ID, 1)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/stories/"+story.ID+"/clone", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusCreated)
	result := parseJSON(t, resp)
	cloneID, ok := result["storyId"].(string)
	if !ok || cloneID == "" || cloneID == story.ID {
		t.Fatalf("expected a fresh storyId, got %v", result["storyId"])
	}

	// The copy carries the script and the converged segments
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/stories/"+cloneID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	copied := parseJSON(t, resp)
	if copied["title"] != "Seeded story (copy)" {
		t.Errorf("expected copy title, got %v", copied["title"])
	}
	if copied["script"] != "The original tale." {
		t.Errorf("expected script carried over, got %v", copied["script"])
	}

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/stories/"+cloneID+"/segments", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	segments := parseJSONArray(t, resp)
	if len(segments) != 2 {
		t.Errorf("expected 2 copied segments, got %d", len(segments))
	}
}
