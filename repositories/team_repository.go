package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/courseloft/teams-api/models"
	"github.com/lib/pq"
)

var (
	ErrTeamNotFound            = errors.New("team not found")
	ErrTeamSubscriptionExists  = errors.New("team already exists for provider subscription")
	ErrTeamOwnerInvalid        = errors.New("team owner does not exist")
	ErrTeamMemberCountNegative = errors.New("team member count would become negative")
)

type TeamRepository interface {
	// Create inserts a team and fills ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, team *models.Team) error

	GetByID(ctx context.Context, id int) (*models.Team, error)
	GetByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*models.Team, error)

	// ApplySubscriptionCascade updates the team's subscription state,
	// the owner's mirror, and every member patch in one transaction.
	ApplySubscriptionCascade(ctx context.Context, team *models.Team, status models.SubscriptionStatus, endDate *time.Time, patches []models.MemberPatch) error

	// DeleteCascade removes a team with its members and clears the
	// owner's mirror. Test-only; production teams are never deleted.
	DeleteCascade(ctx context.Context, teamID int) error
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

const teamColumns = `id, name, owner_id, owner_email, owner_name, subscription_status,
	subscription_plan, subscription_start_date, subscription_end_date, trial_end_date,
	provider_subscription_id, provider_customer_id, provider_price_id, member_count,
	created_at, updated_at`

func scanTeam(row interface{ Scan(dest ...any) error }) (*models.Team, error) {
	team := &models.Team{}
	err := row.Scan(
		&team.ID,
		&team.Name,
		&team.OwnerID,
		&team.OwnerEmail,
		&team.OwnerName,
		&team.SubscriptionStatus,
		&team.SubscriptionPlan,
		&team.SubscriptionStartDate,
		&team.SubscriptionEndDate,
		&team.TrialEndDate,
		&team.ProviderSubscriptionID,
		&team.ProviderCustomerID,
		&team.ProviderPriceID,
		&team.MemberCount,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return team, nil
}

func (r *postgresTeamRepository) Create(ctx context.Context, team *models.Team) error {
	query := `
		INSERT INTO teams (name, owner_id, owner_email, owner_name, subscription_status,
			subscription_plan, subscription_start_date, subscription_end_date, trial_end_date,
			provider_subscription_id, provider_customer_id, provider_price_id, member_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		team.Name,
		team.OwnerID,
		team.OwnerEmail,
		team.OwnerName,
		team.SubscriptionStatus,
		team.SubscriptionPlan,
		team.SubscriptionStartDate,
		team.SubscriptionEndDate,
		team.TrialEndDate,
		team.ProviderSubscriptionID,
		team.ProviderCustomerID,
		team.ProviderPriceID,
		team.MemberCount,
	).Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				if pqErr.Constraint == "teams_provider_subscription_id_key" {
					return ErrTeamSubscriptionExists
				}
			case "23503": // foreign_key_violation
				if pqErr.Constraint == "teams_owner_id_fkey" {
					return ErrTeamOwnerInvalid
				}
			}
		}
		return err
	}
	return nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, id int) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	return scanTeam(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresTeamRepository) GetByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE provider_subscription_id = $1`
	return scanTeam(r.db.QueryRowContext(ctx, query, subscriptionID))
}

func (r *postgresTeamRepository) ApplySubscriptionCascade(ctx context.Context, team *models.Team, status models.SubscriptionStatus, endDate *time.Time, patches []models.MemberPatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cascade transaction: %w", err)
	}
	defer tx.Rollback()

	teamQuery := `
		UPDATE teams
		SET subscription_status = $1,
		    subscription_end_date = COALESCE($2, subscription_end_date),
		    updated_at = NOW()
		WHERE id = $3`
	result, err := tx.ExecContext(ctx, teamQuery, status, endDate, team.ID)
	if err != nil {
		return fmt.Errorf("failed to update team %d status: %w", team.ID, err)
	}
	if err := checkAffectedRows(result, ErrTeamNotFound); err != nil {
		return err
	}

	ownerQuery := `
		UPDATE users
		SET subscription_status = $1
		WHERE id = $2`
	if _, err := tx.ExecContext(ctx, ownerQuery, status, team.OwnerID); err != nil {
		return fmt.Errorf("failed to mirror status onto owner %d: %w", team.OwnerID, err)
	}

	memberQuery := `
		UPDATE team_members
		SET has_subscription_access = $1
		WHERE id = $2 AND team_id = $3`
	mirrorQuery := `
		UPDATE users
		SET subscription_status = $1
		WHERE id = $2`
	for _, patch := range patches {
		if _, err := tx.ExecContext(ctx, memberQuery, patch.HasAccess, patch.MemberID, team.ID); err != nil {
			return fmt.Errorf("failed to patch member %d: %w", patch.MemberID, err)
		}
		if patch.UserID != nil {
			if _, err := tx.ExecContext(ctx, mirrorQuery, patch.MirrorStatus, *patch.UserID); err != nil {
				return fmt.Errorf("failed to mirror status onto user %d: %w", *patch.UserID, err)
			}
		}
	}

	return tx.Commit()
}

func (r *postgresTeamRepository) DeleteCascade(ctx context.Context, teamID int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	clearMirrors := `
		UPDATE users
		SET team_id = NULL, is_team_owner = FALSE, subscription_status = 'none',
		    provider_customer_id = '', provider_subscription_id = ''
		WHERE team_id = $1`
	if _, err := tx.ExecContext(ctx, clearMirrors, teamID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE team_id = $1`, teamID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, teamID)
	if err != nil {
		return err
	}
	if err := checkAffectedRows(result, ErrTeamNotFound); err != nil {
		return err
	}

	return tx.Commit()
}
