package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/courseloft/teams-api/models"
	"github.com/courseloft/teams-api/repositories"
)

const (
	inviteTokenLength = 16 // bytes, 32 hex characters
	inviteDuration    = 7 * 24 * time.Hour
)

type InviteService interface {
	// InviteMember creates an invited membership and mails the invite
	// link. Owner only; the team subscription must be active or trialing.
	InviteMember(ctx context.Context, teamID int, email string, callerID int) (*models.TeamMember, error)

	// AcceptInvite binds the caller to the invited membership.
	AcceptInvite(ctx context.Context, token string, callerID int) (*models.TeamMember, error)

	// DeclineInvite deletes the invited membership. Unauthenticated:
	// possession of the token is the credential. An expired invite may
	// still be declined; declining doubles as cleanup since expired
	// invites are never swept.
	DeclineInvite(ctx context.Context, token string) error

	// LeaveTeam removes the caller's own active membership.
	LeaveTeam(ctx context.Context, callerID int) error

	// RemoveMember marks a membership removed. Owner only.
	RemoveMember(ctx context.Context, teamID, memberID, callerID int) error

	// ResendInvite extends the invite expiry by another 7 days and
	// re-sends the mail. The token is deliberately not rotated so the
	// originally delivered link keeps working.
	ResendInvite(ctx context.Context, teamID, memberID, callerID int) (*models.TeamMember, error)
}

type inviteService struct {
	teams     repositories.TeamRepository
	members   repositories.MemberRepository
	users     repositories.UserRepository
	mailer    InviteMailer
	publisher EventPublisher
	publicURL string
	logger    *slog.Logger
	now       func() time.Time
}

func NewInviteService(
	teams repositories.TeamRepository,
	members repositories.MemberRepository,
	users repositories.UserRepository,
	mailer InviteMailer,
	publisher EventPublisher,
	publicURL string,
	logger *slog.Logger,
) InviteService {
	return &inviteService{
		teams:     teams,
		members:   members,
		users:     users,
		mailer:    mailer,
		publisher: publisher,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		logger:    logger,
		now:       time.Now,
	}
}

func generateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func (s *inviteService) InviteMember(ctx context.Context, teamID int, email string, callerID int) (*models.TeamMember, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrEmailRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrEmailInvalid
	}

	team, err := s.ownedTeam(ctx, teamID, callerID)
	if err != nil {
		return nil, err
	}
	if !team.SubscriptionStatus.GrantsAccess() {
		return nil, ErrSubscriptionInactive
	}

	var member *models.TeamMember
	maxAttempts := 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		token, tokenErr := generateSecureToken(inviteTokenLength)
		if tokenErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrInviteTokenGeneration, tokenErr)
		}
		expiresAt := s.now().Add(inviteDuration)

		member = &models.TeamMember{
			TeamID:          teamID,
			Email:           email,
			Status:          models.MemberInvited,
			InviteToken:     &token,
			InviteExpiresAt: &expiresAt,
			InvitedBy:       callerID,
		}

		err = s.members.Create(ctx, member)
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, repositories.ErrMemberEmailConflict):
			return nil, ErrMemberEmailConflict
		case errors.Is(err, repositories.ErrMemberTeamInvalid):
			return nil, ErrTeamNotFound
		case errors.Is(err, repositories.ErrInviteTokenConflict):
			member = nil // collision, try a fresh token
		default:
			return nil, fmt.Errorf("failed to create invite: %w", err)
		}
	}
	if member == nil {
		return nil, fmt.Errorf("%w after %d attempts", ErrInviteTokenGeneration, maxAttempts)
	}

	// Mail failure does not undo the invite; the owner can resend.
	inviteLink := s.inviteLink(*member.InviteToken)
	if err := s.mailer.SendTeamInviteEmail(email, team.Name, inviteLink); err != nil {
		s.logger.Warn("failed to send invite email",
			slog.Int("team_id", teamID),
			slog.String("email", email),
			slog.Any("error", err))
	}

	return member, nil
}

func (s *inviteService) AcceptInvite(ctx context.Context, token string, callerID int) (*models.TeamMember, error) {
	member, err := s.members.GetByInviteToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to look up invite: %w", err)
	}

	now := s.now()
	// An invite is live strictly before its expiry instant.
	if member.InviteExpiresAt == nil || !now.Before(*member.InviteExpiresAt) {
		return nil, ErrInviteExpired
	}

	team, err := s.teams.GetByID(ctx, member.TeamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team %d: %w", member.TeamID, err)
	}
	if !team.SubscriptionStatus.GrantsAccess() {
		return nil, ErrSubscriptionInactive
	}

	user, err := s.users.GetByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", callerID, err)
	}
	if user.TeamID != nil {
		return nil, ErrAlreadyInTeam
	}

	member.UserID = &user.ID
	member.Status = models.MemberActive
	member.HasSubscriptionAccess = true
	member.InviteToken = nil
	member.InviteExpiresAt = nil
	member.JoinedAt = &now
	if err := s.members.Update(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to activate member %d: %w", member.ID, err)
	}

	mirror := models.SubscriptionMirror{
		TeamID:                 &team.ID,
		SubscriptionStatus:     team.SubscriptionStatus,
		ProviderCustomerID:     team.ProviderCustomerID,
		ProviderSubscriptionID: team.ProviderSubscriptionID,
	}
	if err := s.users.UpdateSubscriptionMirror(ctx, user.ID, mirror); err != nil {
		return nil, fmt.Errorf("failed to mirror subscription onto user %d: %w", user.ID, err)
	}

	s.publish(team.ID, EventMemberJoined, member)
	return member, nil
}

func (s *inviteService) DeclineInvite(ctx context.Context, token string) error {
	member, err := s.members.GetByInviteToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return ErrInviteNotFound
		}
		return fmt.Errorf("failed to look up invite: %w", err)
	}

	// No expiry check: declining an expired invite is allowed and
	// serves as cleanup of the stale row.
	if err := s.members.Delete(ctx, member.ID); err != nil {
		return fmt.Errorf("failed to delete declined invite %d: %w", member.ID, err)
	}
	return nil
}

func (s *inviteService) LeaveTeam(ctx context.Context, callerID int) error {
	user, err := s.users.GetByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user %d: %w", callerID, err)
	}
	if user.TeamID == nil {
		return ErrNoTeamMembership
	}

	team, err := s.teams.GetByID(ctx, *user.TeamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return ErrTeamNotFound
		}
		return fmt.Errorf("failed to get team %d: %w", *user.TeamID, err)
	}
	if team.OwnerID == callerID {
		return ErrOwnerCannotLeave
	}

	member, err := s.members.GetActiveByUserID(ctx, callerID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return ErrNoTeamMembership
		}
		return fmt.Errorf("failed to get membership for user %d: %w", callerID, err)
	}

	if err := s.markRemoved(ctx, member); err != nil {
		return err
	}
	if err := s.users.ClearTeam(ctx, callerID); err != nil {
		return fmt.Errorf("failed to clear team on user %d: %w", callerID, err)
	}

	s.publish(team.ID, EventMemberRemoved, member)
	return nil
}

func (s *inviteService) RemoveMember(ctx context.Context, teamID, memberID, callerID int) error {
	team, err := s.ownedTeam(ctx, teamID, callerID)
	if err != nil {
		return err
	}

	member, err := s.members.GetByID(ctx, teamID, memberID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to get member %d: %w", memberID, err)
	}
	if member.UserID != nil && *member.UserID == team.OwnerID {
		return ErrOwnerCannotBeRemoved
	}
	if member.Status == models.MemberRemoved {
		return ErrMemberAlreadyRemoved
	}

	if err := s.markRemoved(ctx, member); err != nil {
		return err
	}
	if member.UserID != nil {
		if err := s.users.ClearTeam(ctx, *member.UserID); err != nil {
			return fmt.Errorf("failed to clear team on user %d: %w", *member.UserID, err)
		}
	}

	s.publish(teamID, EventMemberRemoved, member)
	return nil
}

func (s *inviteService) ResendInvite(ctx context.Context, teamID, memberID, callerID int) (*models.TeamMember, error) {
	team, err := s.ownedTeam(ctx, teamID, callerID)
	if err != nil {
		return nil, err
	}

	member, err := s.members.GetByID(ctx, teamID, memberID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member %d: %w", memberID, err)
	}
	if member.Status != models.MemberInvited || member.InviteToken == nil {
		return nil, ErrMemberNotInvited
	}

	expiresAt := s.now().Add(inviteDuration)
	member.InviteExpiresAt = &expiresAt
	if err := s.members.Update(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to extend invite %d: %w", member.ID, err)
	}

	inviteLink := s.inviteLink(*member.InviteToken)
	if err := s.mailer.SendTeamInviteEmail(member.Email, team.Name, inviteLink); err != nil {
		s.logger.Warn("failed to resend invite email",
			slog.Int("team_id", teamID),
			slog.String("email", member.Email),
			slog.Any("error", err))
	}

	return member, nil
}

func (s *inviteService) ownedTeam(ctx context.Context, teamID, callerID int) (*models.Team, error) {
	team, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team %d: %w", teamID, err)
	}
	if team.OwnerID != callerID {
		return nil, ErrOwnerActionForbidden
	}
	return team, nil
}

func (s *inviteService) markRemoved(ctx context.Context, member *models.TeamMember) error {
	now := s.now()
	member.Status = models.MemberRemoved
	member.HasSubscriptionAccess = false
	member.InviteToken = nil
	member.InviteExpiresAt = nil
	member.RemovedAt = &now
	if err := s.members.Remove(ctx, member); err != nil {
		return fmt.Errorf("failed to mark member %d removed: %w", member.ID, err)
	}
	return nil
}

func (s *inviteService) inviteLink(token string) string {
	return s.publicURL + "/invite/" + token
}

func (s *inviteService) publish(teamID int, eventType string, payload any) {
	if s.publisher != nil {
		s.publisher.Publish(teamID, eventType, payload)
	}
}
