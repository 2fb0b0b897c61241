package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/courseloft/teams-api/models"
	"github.com/courseloft/teams-api/repositories"
	"golang.org/x/sync/errgroup"
)

// DashboardService is the read-only membership query surface.
type DashboardService interface {
	GetDashboard(ctx context.Context, userID int) (*models.Dashboard, error)
	CheckAccess(ctx context.Context, userID int) (*models.AccessInfo, error)

	// ListMembers returns a team's roster. Callable by the owner or
	// any user bound to the team.
	ListMembers(ctx context.Context, teamID, callerID int) ([]*models.TeamMember, error)
}

type dashboardService struct {
	teams   repositories.TeamRepository
	members repositories.MemberRepository
	users   repositories.UserRepository
}

func NewDashboardService(
	teams repositories.TeamRepository,
	members repositories.MemberRepository,
	users repositories.UserRepository,
) DashboardService {
	return &dashboardService{teams: teams, members: members, users: users}
}

func (s *dashboardService) GetDashboard(ctx context.Context, userID int) (*models.Dashboard, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	if user.TeamID == nil {
		return &models.Dashboard{HasTeam: false}, nil
	}

	var team *models.Team
	var members []*models.TeamMember

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var gerr error
		team, gerr = s.teams.GetByID(gctx, *user.TeamID)
		return gerr
	})
	g.Go(func() error {
		var gerr error
		members, gerr = s.members.ListByTeamID(gctx, *user.TeamID)
		return gerr
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to load dashboard for user %d: %w", userID, err)
	}

	role := "member"
	if team.OwnerID == userID {
		role = "owner"
	}
	return &models.Dashboard{
		HasTeam: true,
		Role:    role,
		Team:    team,
		Members: members,
	}, nil
}

func (s *dashboardService) CheckAccess(ctx context.Context, userID int) (*models.AccessInfo, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	if user.TeamID == nil {
		return &models.AccessInfo{HasAccess: false, Status: models.SubscriptionNone}, nil
	}

	team, err := s.teams.GetByID(ctx, *user.TeamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team %d: %w", *user.TeamID, err)
	}

	if team.OwnerID == userID {
		return &models.AccessInfo{
			HasAccess: team.SubscriptionStatus.GrantsAccess(),
			Status:    team.SubscriptionStatus,
		}, nil
	}

	member, err := s.members.GetActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return &models.AccessInfo{HasAccess: false, Status: models.SubscriptionNone}, nil
		}
		return nil, fmt.Errorf("failed to get membership for user %d: %w", userID, err)
	}
	return &models.AccessInfo{
		HasAccess: member.HasSubscriptionAccess,
		Status:    user.SubscriptionStatus,
	}, nil
}

func (s *dashboardService) ListMembers(ctx context.Context, teamID, callerID int) ([]*models.TeamMember, error) {
	team, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team %d: %w", teamID, err)
	}

	if team.OwnerID != callerID {
		user, err := s.users.GetByID(ctx, callerID)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("failed to get user %d: %w", callerID, err)
		}
		if user.TeamID == nil || *user.TeamID != teamID {
			return nil, ErrNotTeamMember
		}
	}

	members, err := s.members.ListByTeamID(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of team %d: %w", teamID, err)
	}
	return members, nil
}
