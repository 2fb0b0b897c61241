package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/courseloft/teams-api/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdateSubscriptionMirror overwrites the derived subscription
	// fields on a user record.
	UpdateSubscriptionMirror(ctx context.Context, userID int, mirror models.SubscriptionMirror) error

	// ClearTeam detaches a user from any team and resets the mirror.
	ClearTeam(ctx context.Context, userID int) error
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

const userColumns = `id, email, name, team_id, is_team_owner, subscription_status,
	provider_customer_id, provider_subscription_id, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.TeamID,
		&user.IsTeamOwner,
		&user.SubscriptionStatus,
		&user.ProviderCustomerID,
		&user.ProviderSubscriptionID,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *postgresUserRepository) UpdateSubscriptionMirror(ctx context.Context, userID int, mirror models.SubscriptionMirror) error {
	query := `
		UPDATE users
		SET team_id = $1, is_team_owner = $2, subscription_status = $3,
		    provider_customer_id = $4, provider_subscription_id = $5
		WHERE id = $6`

	result, err := r.db.ExecContext(ctx, query,
		mirror.TeamID,
		mirror.IsTeamOwner,
		mirror.SubscriptionStatus,
		mirror.ProviderCustomerID,
		mirror.ProviderSubscriptionID,
		userID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) ClearTeam(ctx context.Context, userID int) error {
	query := `
		UPDATE users
		SET team_id = NULL, is_team_owner = FALSE, subscription_status = 'none',
		    provider_customer_id = '', provider_subscription_id = ''
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrUserNotFound)
}
