package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/courseloft/teams-api/models"
	"github.com/lib/pq"
)

var (
	ErrMemberNotFound      = errors.New("team member not found")
	ErrMemberEmailConflict = errors.New("email already invited or active on this team")
	ErrInviteTokenConflict = errors.New("invite token conflict")
	ErrMemberTeamInvalid   = errors.New("member team does not exist")
)

type MemberRepository interface {
	// Create inserts a member, fills ID and InvitedAt, and increments
	// the team's member count in the same transaction.
	Create(ctx context.Context, member *models.TeamMember) error

	GetByID(ctx context.Context, teamID, memberID int) (*models.TeamMember, error)

	// GetByInviteToken looks up a member still in invited status.
	GetByInviteToken(ctx context.Context, token string) (*models.TeamMember, error)

	// GetActiveByUserID finds the active membership bound to a user.
	GetActiveByUserID(ctx context.Context, userID int) (*models.TeamMember, error)

	ListByTeamID(ctx context.Context, teamID int) ([]*models.TeamMember, error)
	ListActiveByTeamID(ctx context.Context, teamID int) ([]*models.TeamMember, error)

	// Update writes every mutable field of the member row.
	Update(ctx context.Context, member *models.TeamMember) error

	// Remove writes the member row like Update and decrements the
	// team's member count in the same transaction.
	Remove(ctx context.Context, member *models.TeamMember) error

	// Delete removes a member row entirely (invite declined) and
	// decrements the team's member count in the same transaction.
	Delete(ctx context.Context, id int) error
}

type postgresMemberRepository struct {
	db *sql.DB
}

func NewPostgresMemberRepository(db *sql.DB) MemberRepository {
	return &postgresMemberRepository{db: db}
}

const memberColumns = `id, team_id, email, user_id, status, invite_token, invite_expires_at,
	invited_at, invited_by, has_subscription_access, joined_at, removed_at`

func scanMember(row interface{ Scan(dest ...any) error }) (*models.TeamMember, error) {
	member := &models.TeamMember{}
	err := row.Scan(
		&member.ID,
		&member.TeamID,
		&member.Email,
		&member.UserID,
		&member.Status,
		&member.InviteToken,
		&member.InviteExpiresAt,
		&member.InvitedAt,
		&member.InvitedBy,
		&member.HasSubscriptionAccess,
		&member.JoinedAt,
		&member.RemovedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

func (r *postgresMemberRepository) Create(ctx context.Context, member *models.TeamMember) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin create transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO team_members (team_id, email, user_id, status, invite_token,
			invite_expires_at, invited_by, has_subscription_access)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, invited_at`

	err = tx.QueryRowContext(ctx, query,
		member.TeamID,
		member.Email,
		member.UserID,
		member.Status,
		member.InviteToken,
		member.InviteExpiresAt,
		member.InvitedBy,
		member.HasSubscriptionAccess,
	).Scan(&member.ID, &member.InvitedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				switch pqErr.Constraint {
				case "team_members_email_key":
					return ErrMemberEmailConflict
				case "team_members_invite_token_key":
					return ErrInviteTokenConflict
				}
			case "23503": // foreign_key_violation
				if pqErr.Constraint == "team_members_team_id_fkey" {
					return ErrMemberTeamInvalid
				}
			}
		}
		return err
	}

	if err := adjustMemberCount(ctx, tx, member.TeamID, 1); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *postgresMemberRepository) GetByID(ctx context.Context, teamID, memberID int) (*models.TeamMember, error) {
	query := `SELECT ` + memberColumns + ` FROM team_members WHERE id = $1 AND team_id = $2`
	return scanMember(r.db.QueryRowContext(ctx, query, memberID, teamID))
}

func (r *postgresMemberRepository) GetByInviteToken(ctx context.Context, token string) (*models.TeamMember, error) {
	query := `SELECT ` + memberColumns + ` FROM team_members WHERE invite_token = $1 AND status = 'invited'`
	return scanMember(r.db.QueryRowContext(ctx, query, token))
}

func (r *postgresMemberRepository) GetActiveByUserID(ctx context.Context, userID int) (*models.TeamMember, error) {
	query := `SELECT ` + memberColumns + ` FROM team_members WHERE user_id = $1 AND status = 'active'`
	return scanMember(r.db.QueryRowContext(ctx, query, userID))
}

func (r *postgresMemberRepository) ListByTeamID(ctx context.Context, teamID int) ([]*models.TeamMember, error) {
	query := `SELECT ` + memberColumns + ` FROM team_members WHERE team_id = $1 ORDER BY invited_at`
	return r.list(ctx, query, teamID)
}

func (r *postgresMemberRepository) ListActiveByTeamID(ctx context.Context, teamID int) ([]*models.TeamMember, error) {
	query := `SELECT ` + memberColumns + ` FROM team_members WHERE team_id = $1 AND status = 'active' ORDER BY invited_at`
	return r.list(ctx, query, teamID)
}

func (r *postgresMemberRepository) list(ctx context.Context, query string, args ...any) ([]*models.TeamMember, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]*models.TeamMember, 0)
	for rows.Next() {
		member, scanErr := scanMember(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		members = append(members, member)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *postgresMemberRepository) Update(ctx context.Context, member *models.TeamMember) error {
	query := `
		UPDATE team_members
		SET email = $1, user_id = $2, status = $3, invite_token = $4, invite_expires_at = $5,
		    has_subscription_access = $6, joined_at = $7, removed_at = $8
		WHERE id = $9`

	result, err := r.db.ExecContext(ctx, query,
		member.Email,
		member.UserID,
		member.Status,
		member.InviteToken,
		member.InviteExpiresAt,
		member.HasSubscriptionAccess,
		member.JoinedAt,
		member.RemovedAt,
		member.ID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) Remove(ctx context.Context, member *models.TeamMember) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin remove transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE team_members
		SET email = $1, user_id = $2, status = $3, invite_token = $4, invite_expires_at = $5,
		    has_subscription_access = $6, joined_at = $7, removed_at = $8
		WHERE id = $9`
	result, err := tx.ExecContext(ctx, query,
		member.Email,
		member.UserID,
		member.Status,
		member.InviteToken,
		member.InviteExpiresAt,
		member.HasSubscriptionAccess,
		member.JoinedAt,
		member.RemovedAt,
		member.ID,
	)
	if err != nil {
		return err
	}
	if err := checkAffectedRows(result, ErrMemberNotFound); err != nil {
		return err
	}

	if err := adjustMemberCount(ctx, tx, member.TeamID, -1); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *postgresMemberRepository) Delete(ctx context.Context, id int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	var teamID int
	err = tx.QueryRowContext(ctx, `DELETE FROM team_members WHERE id = $1 RETURNING team_id`, id).Scan(&teamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMemberNotFound
		}
		return err
	}

	if err := adjustMemberCount(ctx, tx, teamID, -1); err != nil {
		return err
	}
	return tx.Commit()
}

// adjustMemberCount keeps teams.member_count in step with the member
// row change inside the caller's transaction.
func adjustMemberCount(ctx context.Context, tx *sql.Tx, teamID, delta int) error {
	query := `
		UPDATE teams
		SET member_count = member_count + $1, updated_at = NOW()
		WHERE id = $2 AND member_count + $1 >= 0`
	result, err := tx.ExecContext(ctx, query, delta, teamID)
	if err != nil {
		return err
	}
	// The member write above already proved the team exists, so an
	// unmatched row can only mean underflow.
	return checkAffectedRows(result, ErrTeamMemberCountNegative)
}
