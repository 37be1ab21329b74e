package api

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/GracePathHQ/gracepath-web/internal/models"
	"github.com/GracePathHQ/gracepath-web/internal/testutil"
)

// =============================================================================
// Counselor assignment and coverage HTTP integration tests. Assignment
// management is an operator surface behind the admin key; coverage grants
// are created by the assigned counselor themselves.
// =============================================================================

func TestAssignments_HTTP_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping HTTP integration test in short mode")
	}

	env := testutil.SetupTestEnvironment(t)

	t.Run("operator creates and deactivates an assignment", func(t *testing.T) {
		env.CleanDB(t)

		counselor := testutil.CreateTestUser(t, env, "pastor@example.com", "Pastor")
		member := testutil.CreateTestUser(t, env, "congregant@example.com", "Congregant")

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithAdminKey(testAdminKey)

		resp, err := client.Post("/api/v1/admin/assignments", createAssignmentRequest{
			OrgID:       1,
			CounselorID: counselor.ID,
			MemberID:    member.ID,
		})
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusCreated)

		var assignment models.CounselorAssignment
		testutil.ParseJSON(t, resp, &assignment)
		if assignment.Status != models.AssignmentActive {
			t.Errorf("status = %q, want active", assignment.Status)
		}

		// A duplicate active pair conflicts
		resp, err = client.Post("/api/v1/admin/assignments", createAssignmentRequest{
			OrgID:       1,
			CounselorID: counselor.ID,
			MemberID:    member.ID,
		})
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusConflict)

		resp, err = client.Delete("/api/v1/admin/assignments/" + strconv.FormatInt(assignment.ID, 10))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusNoContent)
		resp.Body.Close()

		// Deactivation keeps the row for history
		var status string
		row := env.DB.QueryRow(env.Ctx,
			"SELECT status FROM counselor_assignments WHERE id = $1", assignment.ID)
		if err := row.Scan(&status); err != nil {
			t.Fatalf("assignment row missing: %v", err)
		}
		if status != "inactive" {
			t.Errorf("status = %q, want inactive", status)
		}

		// Re-assignment after deactivation is allowed
		resp, err = client.Post("/api/v1/admin/assignments", createAssignmentRequest{
			OrgID:       1,
			CounselorID: counselor.ID,
			MemberID:    member.ID,
		})
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	})

	t.Run("assignment endpoints refuse user auth without the key", func(t *testing.T) {
		env.CleanDB(t)

		user := testutil.CreateTestUser(t, env, "plainuser@example.com", "Plain User")
		token := testutil.CreateTestWebSessionWithToken(t, env, user.ID)

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Post("/api/v1/admin/assignments", createAssignmentRequest{
			OrgID:       1,
			CounselorID: user.ID,
			MemberID:    user.ID + 1,
		})
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusForbidden)
	})

	t.Run("counselor lists assigned members", func(t *testing.T) {
		env.CleanDB(t)

		counselor := testutil.CreateTestUser(t, env, "shepherd@example.com", "Shepherd")
		memberA := testutil.CreateTestUser(t, env, "membera@example.com", "Member A")
		memberB := testutil.CreateTestUser(t, env, "memberb@example.com", "Member B")
		testutil.CreateTestAssignment(t, env, 1, counselor.ID, memberA.ID)
		testutil.CreateTestAssignment(t, env, 1, counselor.ID, memberB.ID)
		token := testutil.CreateTestWebSessionWithToken(t, env, counselor.ID)

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Get("/api/v1/counselor/members")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusOK)

		var result struct {
			Members []models.User `json:"members"`
		}
		testutil.ParseJSON(t, resp, &result)
		if len(result.Members) != 2 {
			t.Errorf("expected 2 members, got %d", len(result.Members))
		}
	})
}

func TestCoverage_HTTP_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping HTTP integration test in short mode")
	}

	env := testutil.SetupTestEnvironment(t)

	t.Run("assigned counselor delegates and revokes coverage", func(t *testing.T) {
		env.CleanDB(t)

		counselor := testutil.CreateTestUser(t, env, "primary@example.com", "Primary")
		backup := testutil.CreateTestUser(t, env, "secondary@example.com", "Secondary")
		member := testutil.CreateTestUser(t, env, "flock@example.com", "Flock")
		testutil.CreateTestAssignment(t, env, 1, counselor.ID, member.ID)
		token := testutil.CreateTestWebSessionWithToken(t, env, counselor.ID)
		sessionID := testutil.CreateTestSession(t, env, &member.ID, "Member session")

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		days := 14
		resp, err := client.Post("/api/v1/counselor/coverage", createCoverageRequest{
			CounselorID:   backup.ID,
			MemberID:      member.ID,
			ExpiresInDays: &days,
		})
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusCreated)

		var grant models.CounselorCoverageGrant
		testutil.ParseJSON(t, resp, &grant)
		if grant.ExpiresAt == nil {
			t.Error("expected expiry on the grant")
		}

		// The backup can now view the member's session
		backupToken := testutil.CreateTestWebSessionWithToken(t, env, backup.ID)
		resp, err = testutil.NewTestClient(t, ts).WithSession(backupToken).Get("/api/v1/sessions/" + sessionID)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusOK)
		resp.Body.Close()

		resp, err = client.Delete("/api/v1/counselor/coverage/" + strconv.FormatInt(grant.ID, 10))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusNoContent)
		resp.Body.Close()

		// Revocation cuts access immediately
		resp, err = testutil.NewTestClient(t, ts).WithSession(backupToken).Get("/api/v1/sessions/" + sessionID)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusNotFound)
	})

	t.Run("unassigned counselor cannot delegate", func(t *testing.T) {
		env.CleanDB(t)

		pretender := testutil.CreateTestUser(t, env, "pretender@example.com", "Pretender")
		backup := testutil.CreateTestUser(t, env, "idle@example.com", "Idle")
		member := testutil.CreateTestUser(t, env, "unrelated@example.com", "Unrelated")
		token := testutil.CreateTestWebSessionWithToken(t, env, pretender.ID)

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Post("/api/v1/counselor/coverage", createCoverageRequest{
			CounselorID: backup.ID,
			MemberID:    member.ID,
		})
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusForbidden)
	})

	t.Run("self-grant is rejected", func(t *testing.T) {
		env.CleanDB(t)

		counselor := testutil.CreateTestUser(t, env, "selfish@example.com", "Selfish")
		member := testutil.CreateTestUser(t, env, "watched@example.com", "Watched")
		testutil.CreateTestAssignment(t, env, 1, counselor.ID, member.ID)
		token := testutil.CreateTestWebSessionWithToken(t, env, counselor.ID)

		ts := setupAPITestServer(t, env, nil)
		client := testutil.NewTestClient(t, ts).WithSession(token)

		resp, err := client.Post("/api/v1/counselor/coverage", createCoverageRequest{
			CounselorID: counselor.ID,
			MemberID:    member.ID,
		})
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		testutil.RequireStatus(t, resp, http.StatusBadRequest)
	})
}
