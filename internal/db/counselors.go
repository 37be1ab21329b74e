package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GracePathHQ/gracepath-web/internal/models"
)

// isUniqueViolation reports whether err is PostgreSQL's duplicate-key error.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}

// CreateAssignment creates an active counselor assignment. The partial unique
// index on (org_id, counselor_id, member_id) WHERE status='active' makes the
// single-active-assignment rule atomic; a duplicate surfaces as
// ErrAssignmentExists.
func (db *DB) CreateAssignment(ctx context.Context, orgID, counselorID, memberID int64) (*models.CounselorAssignment, error) {
	ctx, span := tracer.Start(ctx, "db.create_assignment",
		trace.WithAttributes(
			attribute.Int64("org.id", orgID),
			attribute.Int64("counselor.id", counselorID),
			attribute.Int64("member.id", memberID),
		))
	defer span.End()

	assignment := models.CounselorAssignment{
		OrgID:       orgID,
		CounselorID: counselorID,
		MemberID:    memberID,
		Status:      models.AssignmentActive,
	}

	query := `INSERT INTO counselor_assignments (org_id, counselor_id, member_id, status)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id, created_at, updated_at`
	err := db.conn.QueryRowContext(ctx, query, orgID, counselorID, memberID, models.AssignmentActive).
		Scan(&assignment.ID, &assignment.CreatedAt, &assignment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAssignmentExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}

	return &assignment, nil
}

// DeactivateAssignment marks an assignment inactive. Deactivation keeps the
// row for history; only active rows confer access.
func (db *DB) DeactivateAssignment(ctx context.Context, assignmentID int64) error {
	ctx, span := tracer.Start(ctx, "db.deactivate_assignment",
		trace.WithAttributes(attribute.Int64("assignment.id", assignmentID)))
	defer span.End()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE counselor_assignments SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		models.AssignmentInactive, assignmentID, models.AssignmentActive)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to deactivate assignment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAssignmentNotFound
	}

	return nil
}

// GetActiveAssignment returns the active assignment between a counselor and a
// member, if any.
func (db *DB) GetActiveAssignment(ctx context.Context, counselorID, memberID int64) (*models.CounselorAssignment, error) {
	ctx, span := tracer.Start(ctx, "db.get_active_assignment",
		trace.WithAttributes(
			attribute.Int64("counselor.id", counselorID),
			attribute.Int64("member.id", memberID),
		))
	defer span.End()

	var a models.CounselorAssignment
	query := `SELECT id, org_id, counselor_id, member_id, status, created_at, updated_at
	          FROM counselor_assignments
	          WHERE counselor_id = $1 AND member_id = $2 AND status = $3`
	err := db.conn.QueryRowContext(ctx, query, counselorID, memberID, models.AssignmentActive).Scan(
		&a.ID, &a.OrgID, &a.CounselorID, &a.MemberID, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAssignmentNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return &a, nil
}

// ListCounselorMembers returns the members a counselor is actively assigned to
func (db *DB) ListCounselorMembers(ctx context.Context, counselorID int64) ([]models.User, error) {
	ctx, span := tracer.Start(ctx, "db.list_counselor_members",
		trace.WithAttributes(attribute.Int64("counselor.id", counselorID)))
	defer span.End()

	query := `SELECT u.id, u.email, u.name, u.email_verified, u.created_at, u.updated_at
	          FROM counselor_assignments a
	          JOIN users u ON u.id = a.member_id
	          WHERE a.counselor_id = $1 AND a.status = $2
	          ORDER BY u.id`

	rows, err := db.conn.QueryContext(ctx, query, counselorID, models.AssignmentActive)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	members := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}

	return members, nil
}

// CreateCoverageGrant delegates temporary counselor access over a member's
// sessions. expiresAt nil means the grant holds until revoked.
func (db *DB) CreateCoverageGrant(ctx context.Context, counselorID, memberID int64, expiresAt *time.Time) (*models.CounselorCoverageGrant, error) {
	ctx, span := tracer.Start(ctx, "db.create_coverage_grant",
		trace.WithAttributes(
			attribute.Int64("counselor.id", counselorID),
			attribute.Int64("member.id", memberID),
		))
	defer span.End()

	grant := models.CounselorCoverageGrant{
		CounselorID: counselorID,
		MemberID:    memberID,
		ExpiresAt:   expiresAt,
	}

	query := `INSERT INTO counselor_coverage_grants (counselor_id, member_id, expires_at)
	          VALUES ($1, $2, $3)
	          RETURNING id, created_at`
	err := db.conn.QueryRowContext(ctx, query, counselorID, memberID, expiresAt).
		Scan(&grant.ID, &grant.CreatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create coverage grant: %w", err)
	}

	return &grant, nil
}

// RevokeCoverageGrant stamps revoked_at on a grant. Revoking an already
// revoked grant is a no-op success.
func (db *DB) RevokeCoverageGrant(ctx context.Context, grantID int64) error {
	ctx, span := tracer.Start(ctx, "db.revoke_coverage_grant",
		trace.WithAttributes(attribute.Int64("grant.id", grantID)))
	defer span.End()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE counselor_coverage_grants SET revoked_at = COALESCE(revoked_at, NOW()) WHERE id = $1`,
		grantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to revoke coverage grant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrGrantNotFound
	}

	return nil
}

// GetCoverageGrant retrieves a grant by ID regardless of validity
func (db *DB) GetCoverageGrant(ctx context.Context, grantID int64) (*models.CounselorCoverageGrant, error) {
	ctx, span := tracer.Start(ctx, "db.get_coverage_grant",
		trace.WithAttributes(attribute.Int64("grant.id", grantID)))
	defer span.End()

	var g models.CounselorCoverageGrant
	query := `SELECT id, counselor_id, member_id, expires_at, revoked_at, created_at
	          FROM counselor_coverage_grants
	          WHERE id = $1`
	err := db.conn.QueryRowContext(ctx, query, grantID).Scan(
		&g.ID, &g.CounselorID, &g.MemberID, &g.ExpiresAt, &g.RevokedAt, &g.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrGrantNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get coverage grant: %w", err)
	}

	return &g, nil
}

// GetValidCoverageGrant returns a currently-valid grant for the pair, if one
// exists. Validity (not revoked, not expired) is evaluated in the query.
func (db *DB) GetValidCoverageGrant(ctx context.Context, counselorID, memberID int64) (*models.CounselorCoverageGrant, error) {
	ctx, span := tracer.Start(ctx, "db.get_valid_coverage_grant",
		trace.WithAttributes(
			attribute.Int64("counselor.id", counselorID),
			attribute.Int64("member.id", memberID),
		))
	defer span.End()

	var g models.CounselorCoverageGrant
	query := `SELECT id, counselor_id, member_id, expires_at, revoked_at, created_at
	          FROM counselor_coverage_grants
	          WHERE counselor_id = $1 AND member_id = $2
	            AND revoked_at IS NULL
	            AND (expires_at IS NULL OR expires_at >= NOW())
	          ORDER BY created_at DESC
	          LIMIT 1`
	err := db.conn.QueryRowContext(ctx, query, counselorID, memberID).Scan(
		&g.ID, &g.CounselorID, &g.MemberID, &g.ExpiresAt, &g.RevokedAt, &g.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrGrantNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get coverage grant: %w", err)
	}

	return &g, nil
}
