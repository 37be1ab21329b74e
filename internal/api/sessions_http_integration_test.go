package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/GracePathHQ/gracepath-web/internal/models"
	"github.com/GracePathHQ/gracepath-web/internal/storage"
	"github.com/GracePathHQ/gracepath-web/internal/testutil"
)

// =============================================================================
// Session ledger HTTP integration tests: listing, detail with access roles,
// completion with transcript archival, transcript download.
// =============================================================================

type sessionDetailResult struct {
	Session    *models.Session      `json:"session"`
	Notes      []models.SessionNote `json:"notes"`
	ViewerRole string               `json:"viewer_role"`
}

func TestListSessions_HTTP_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping HTTP integration test in short mode")
	}

	env := testutil.SetupTestEnvironment(t)

	t.Run("lists own sessions with status filter", func(t *testing.T) {
		env.CleanDB(t)

		user := testutil.CreateTestUser(t, env, "lister@example.com", "Lister")
		token := testutil.CreateTestWebSessionWithToken(t, env, user.ID)
		active := testutil.CreateTestSession(t, env, &user.ID, "Active one")
		completed := testutil.CreateTestSession(t, env, &user.ID, "Completed one")
		testutil.CompleteTestSession(t, env, completed)

		// Someone else's session must never appear
		other := testutil.CreateTestUser(t, env, "someone@example.com", "Someone")
		testutil.CreateTestSession(t, env, &other.ID, "Not yours")

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Get("/api/v1/sessions")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusOK)

		var result struct {
			Sessions []models.Session `json:"sessions"`
		}
		testutil.ParseJSON(t, resp, &result)
		if len(result.Sessions) != 2 {
			t.Fatalf("expected 2 sessions, got %d", len(result.Sessions))
		}

		resp, err = client.Get("/api/v1/sessions?status=active")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusOK)
		testutil.ParseJSON(t, resp, &result)
		if len(result.Sessions) != 1 || result.Sessions[0].ID != active {
			t.Errorf("expected only the active session, got %+v", result.Sessions)
		}
	})

	t.Run("rejects unknown status filter", func(t *testing.T) {
		env.CleanDB(t)

		user := testutil.CreateTestUser(t, env, "filter@example.com", "Filter")
		token := testutil.CreateTestWebSessionWithToken(t, env, user.ID)

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Get("/api/v1/sessions?status=archived")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("requires authentication", func(t *testing.T) {
		env.CleanDB(t)

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts)

		resp, err := client.Get("/api/v1/sessions")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusUnauthorized)
	})
}

func TestGetSession_HTTP_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping HTTP integration test in short mode")
	}

	env := testutil.SetupTestEnvironment(t)

	t.Run("owner sees all notes including private", func(t *testing.T) {
		env.CleanDB(t)

		owner := testutil.CreateTestUser(t, env, "owner@example.com", "Owner")
		counselor := testutil.CreateTestUser(t, env, "counselor@example.com", "Counselor")
		token := testutil.CreateTestWebSessionWithToken(t, env, owner.ID)
		sessionID := testutil.CreateTestSession(t, env, &owner.ID, "My session")
		testutil.CreateTestNote(t, env, sessionID, owner.ID, "user", "my own note", false)
		testutil.CreateTestNote(t, env, sessionID, counselor.ID, "counselor", "confidential observation", true)

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Get("/api/v1/sessions/" + sessionID)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusOK)

		var result sessionDetailResult
		testutil.ParseJSON(t, resp, &result)

		if result.ViewerRole != "owner" {
			t.Errorf("viewer_role = %q, want owner", result.ViewerRole)
		}
		if len(result.Notes) != 2 {
			t.Errorf("owner should see both notes, got %d", len(result.Notes))
		}
	})

	t.Run("assigned counselor sees private notes", func(t *testing.T) {
		env.CleanDB(t)

		member := testutil.CreateTestUser(t, env, "member@example.com", "Member")
		counselor := testutil.CreateTestUser(t, env, "assigned@example.com", "Assigned")
		testutil.CreateTestAssignment(t, env, 1, counselor.ID, member.ID)
		token := testutil.CreateTestWebSessionWithToken(t, env, counselor.ID)
		sessionID := testutil.CreateTestSession(t, env, &member.ID, "Member session")
		testutil.CreateTestNote(t, env, sessionID, counselor.ID, "counselor", "private prep note", true)

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Get("/api/v1/sessions/" + sessionID)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusOK)

		var result sessionDetailResult
		testutil.ParseJSON(t, resp, &result)

		if result.ViewerRole != "assigned" {
			t.Errorf("viewer_role = %q, want assigned", result.ViewerRole)
		}
		if len(result.Notes) != 1 {
			t.Errorf("assigned counselor should see the private note, got %d notes", len(result.Notes))
		}
	})

	t.Run("coverage counselor never sees private notes", func(t *testing.T) {
		env.CleanDB(t)

		member := testutil.CreateTestUser(t, env, "covered@example.com", "Covered")
		backup := testutil.CreateTestUser(t, env, "backup@example.com", "Backup")
		author := testutil.CreateTestUser(t, env, "author@example.com", "Author")
		testutil.CreateTestCoverageGrant(t, env, backup.ID, member.ID, nil)
		token := testutil.CreateTestWebSessionWithToken(t, env, backup.ID)
		sessionID := testutil.CreateTestSession(t, env, &member.ID, "Covered session")
		testutil.CreateTestNote(t, env, sessionID, author.ID, "counselor", "visible note", false)
		testutil.CreateTestNote(t, env, sessionID, author.ID, "counselor", "hidden from coverage", true)

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Get("/api/v1/sessions/" + sessionID)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusOK)

		var result sessionDetailResult
		testutil.ParseJSON(t, resp, &result)

		if result.ViewerRole != "coverage" {
			t.Errorf("viewer_role = %q, want coverage", result.ViewerRole)
		}
		if len(result.Notes) != 1 {
			t.Fatalf("coverage should see only the non-private note, got %d", len(result.Notes))
		}
		if result.Notes[0].IsPrivate {
			t.Error("coverage counselor received a private note")
		}
	})

	t.Run("unrelated user gets 404", func(t *testing.T) {
		env.CleanDB(t)

		owner := testutil.CreateTestUser(t, env, "owned@example.com", "Owned")
		stranger := testutil.CreateTestUser(t, env, "stranger@example.com", "Stranger")
		token := testutil.CreateTestWebSessionWithToken(t, env, stranger.ID)
		sessionID := testutil.CreateTestSession(t, env, &owner.ID, "Private session")

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Get("/api/v1/sessions/" + sessionID)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusNotFound)
	})

	t.Run("malformed session ID gets 404", func(t *testing.T) {
		env.CleanDB(t)

		user := testutil.CreateTestUser(t, env, "malformed@example.com", "Malformed")
		token := testutil.CreateTestWebSessionWithToken(t, env, user.ID)

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Get("/api/v1/sessions/not-a-uuid")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusNotFound)
	})
}

func TestCompleteSession_HTTP_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping HTTP integration test in short mode")
	}

	env := testutil.SetupTestEnvironment(t)

	t.Run("completes and archives transcript", func(t *testing.T) {
		env.CleanDB(t)

		user := testutil.CreateTestUser(t, env, "archiver@example.com", "Archiver")
		token := testutil.CreateTestWebSessionWithToken(t, env, user.ID)
		sessionID := testutil.CreateTestSession(t, env, &user.ID, "To archive")
		testutil.AppendTestMessage(t, env, sessionID, "user", "I need guidance about patience")
		testutil.AppendTestMessage(t, env, sessionID, "assistant", "Patience grows through trials.")

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Post("/api/v1/sessions/"+sessionID+"/complete", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusOK)
		resp.Body.Close()

		var status string
		row := env.DB.QueryRow(env.Ctx, "SELECT status FROM sessions WHERE id = $1", sessionID)
		if err := row.Scan(&status); err != nil {
			t.Fatalf("failed to read session: %v", err)
		}
		if status != "completed" {
			t.Errorf("status = %q, want completed", status)
		}

		key := storage.TranscriptKey(&models.Session{ID: sessionID, UserID: &user.ID})
		transcript := testutil.VerifyTranscriptInS3(t, env, key)
		if !strings.Contains(string(transcript), "I need guidance about patience") {
			t.Error("archived transcript missing the user message")
		}

		// Download it back over HTTP
		resp, err = client.Get("/api/v1/sessions/" + sessionID + "/transcript")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusOK)
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Errorf("Content-Type = %q, want text/plain", ct)
		}
		resp.Body.Close()
	})

	t.Run("completing twice returns 409", func(t *testing.T) {
		env.CleanDB(t)

		user := testutil.CreateTestUser(t, env, "twice@example.com", "Twice")
		token := testutil.CreateTestWebSessionWithToken(t, env, user.ID)
		sessionID := testutil.CreateTestSession(t, env, &user.ID, "Twice done")
		testutil.CompleteTestSession(t, env, sessionID)

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Post("/api/v1/sessions/"+sessionID+"/complete", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusConflict)
	})

	t.Run("non-owner cannot complete", func(t *testing.T) {
		env.CleanDB(t)

		owner := testutil.CreateTestUser(t, env, "real-owner@example.com", "Real Owner")
		other := testutil.CreateTestUser(t, env, "not-owner@example.com", "Not Owner")
		token := testutil.CreateTestWebSessionWithToken(t, env, other.ID)
		sessionID := testutil.CreateTestSession(t, env, &owner.ID, "Protected")

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Post("/api/v1/sessions/"+sessionID+"/complete", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusNotFound)

		var status string
		row := env.DB.QueryRow(env.Ctx, "SELECT status FROM sessions WHERE id = $1", sessionID)
		if err := row.Scan(&status); err != nil {
			t.Fatalf("failed to read session: %v", err)
		}
		if status != "active" {
			t.Errorf("session status changed to %q by a non-owner", status)
		}
	})
}
