package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/courseloft/teams-api/billing"
	"github.com/courseloft/teams-api/models"
	"github.com/courseloft/teams-api/repositories"
)

// fakeStore is an in-memory stand-in for the Postgres repositories. It
// honors the same sentinel errors and uniqueness rules the real
// repositories enforce.
type fakeStore struct {
	teams        map[int]*models.Team
	members      map[int]*models.TeamMember
	users        map[int]*models.User
	events       map[string]time.Time
	nextTeamID   int
	nextMemberID int

	// mirrorFailures makes the next N UpdateSubscriptionMirror calls
	// fail, for exercising partial-write recovery.
	mirrorFailures int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		teams:        make(map[int]*models.Team),
		members:      make(map[int]*models.TeamMember),
		users:        make(map[int]*models.User),
		events:       make(map[string]time.Time),
		nextTeamID:   1,
		nextMemberID: 1,
	}
}

func (f *fakeStore) addUser(user *models.User) *models.User {
	f.users[user.ID] = user
	return user
}

func (f *fakeStore) addTeam(team *models.Team) *models.Team {
	if team.ID == 0 {
		team.ID = f.nextTeamID
		f.nextTeamID++
	} else if team.ID >= f.nextTeamID {
		f.nextTeamID = team.ID + 1
	}
	f.teams[team.ID] = team
	return team
}

func (f *fakeStore) addMember(member *models.TeamMember) *models.TeamMember {
	if member.ID == 0 {
		member.ID = f.nextMemberID
		f.nextMemberID++
	} else if member.ID >= f.nextMemberID {
		f.nextMemberID = member.ID + 1
	}
	f.members[member.ID] = member
	return member
}

// TeamRepository

func (f *fakeStore) Create(ctx context.Context, team *models.Team) error {
	if team.ProviderSubscriptionID != "" {
		for _, existing := range f.teams {
			if existing.ProviderSubscriptionID == team.ProviderSubscriptionID {
				return repositories.ErrTeamSubscriptionExists
			}
		}
	}
	team.CreatedAt = time.Now()
	team.UpdatedAt = team.CreatedAt
	f.addTeam(team)
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id int) (*models.Team, error) {
	team, ok := f.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	return team, nil
}

func (f *fakeStore) GetByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*models.Team, error) {
	for _, team := range f.teams {
		if subscriptionID != "" && team.ProviderSubscriptionID == subscriptionID {
			return team, nil
		}
	}
	return nil, repositories.ErrTeamNotFound
}

func (f *fakeStore) ApplySubscriptionCascade(ctx context.Context, team *models.Team, status models.SubscriptionStatus, endDate *time.Time, patches []models.MemberPatch) error {
	stored, ok := f.teams[team.ID]
	if !ok {
		return repositories.ErrTeamNotFound
	}
	stored.SubscriptionStatus = status
	if endDate != nil {
		stored.SubscriptionEndDate = endDate
	}
	if owner, ok := f.users[stored.OwnerID]; ok {
		owner.SubscriptionStatus = status
	}
	for _, patch := range patches {
		if member, ok := f.members[patch.MemberID]; ok {
			member.HasSubscriptionAccess = patch.HasAccess
		}
		if patch.UserID != nil {
			if user, ok := f.users[*patch.UserID]; ok {
				user.SubscriptionStatus = patch.MirrorStatus
			}
		}
	}
	return nil
}

func (f *fakeStore) DeleteCascade(ctx context.Context, teamID int) error {
	if _, ok := f.teams[teamID]; !ok {
		return repositories.ErrTeamNotFound
	}
	for id, member := range f.members {
		if member.TeamID == teamID {
			delete(f.members, id)
		}
	}
	for _, user := range f.users {
		if user.TeamID != nil && *user.TeamID == teamID {
			f.clearUserTeam(user)
		}
	}
	delete(f.teams, teamID)
	return nil
}

// MemberRepository. The method set overlaps TeamRepository's only at
// Create/GetByID signatures, which differ by type, so fakeStore cannot
// implement both interfaces directly; memberStore wraps it.

type memberStore struct{ *fakeStore }

func (f memberStore) Create(ctx context.Context, member *models.TeamMember) error {
	if _, ok := f.teams[member.TeamID]; !ok {
		return repositories.ErrMemberTeamInvalid
	}
	for _, existing := range f.members {
		if existing.TeamID == member.TeamID &&
			strings.EqualFold(existing.Email, member.Email) &&
			existing.Status != models.MemberRemoved {
			return repositories.ErrMemberEmailConflict
		}
		if member.InviteToken != nil && existing.InviteToken != nil &&
			*existing.InviteToken == *member.InviteToken {
			return repositories.ErrInviteTokenConflict
		}
	}
	member.InvitedAt = time.Now()
	f.addMember(member)
	f.teams[member.TeamID].MemberCount++
	return nil
}

func (f memberStore) GetByID(ctx context.Context, teamID, memberID int) (*models.TeamMember, error) {
	member, ok := f.members[memberID]
	if !ok || member.TeamID != teamID {
		return nil, repositories.ErrMemberNotFound
	}
	return member, nil
}

func (f memberStore) GetByInviteToken(ctx context.Context, token string) (*models.TeamMember, error) {
	for _, member := range f.members {
		if member.Status == models.MemberInvited &&
			member.InviteToken != nil && *member.InviteToken == token {
			return member, nil
		}
	}
	return nil, repositories.ErrMemberNotFound
}

func (f memberStore) GetActiveByUserID(ctx context.Context, userID int) (*models.TeamMember, error) {
	for _, member := range f.members {
		if member.Status == models.MemberActive &&
			member.UserID != nil && *member.UserID == userID {
			return member, nil
		}
	}
	return nil, repositories.ErrMemberNotFound
}

func (f memberStore) ListByTeamID(ctx context.Context, teamID int) ([]*models.TeamMember, error) {
	return f.list(teamID, false), nil
}

func (f memberStore) ListActiveByTeamID(ctx context.Context, teamID int) ([]*models.TeamMember, error) {
	return f.list(teamID, true), nil
}

func (f memberStore) list(teamID int, activeOnly bool) []*models.TeamMember {
	members := make([]*models.TeamMember, 0)
	for _, member := range f.members {
		if member.TeamID != teamID {
			continue
		}
		if activeOnly && member.Status != models.MemberActive {
			continue
		}
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

func (f memberStore) Update(ctx context.Context, member *models.TeamMember) error {
	if _, ok := f.members[member.ID]; !ok {
		return repositories.ErrMemberNotFound
	}
	f.members[member.ID] = member
	return nil
}

func (f memberStore) Remove(ctx context.Context, member *models.TeamMember) error {
	if _, ok := f.members[member.ID]; !ok {
		return repositories.ErrMemberNotFound
	}
	f.members[member.ID] = member
	return f.decrementCount(member.TeamID)
}

func (f memberStore) Delete(ctx context.Context, id int) error {
	member, ok := f.members[id]
	if !ok {
		return repositories.ErrMemberNotFound
	}
	delete(f.members, id)
	return f.decrementCount(member.TeamID)
}

func (f memberStore) decrementCount(teamID int) error {
	team, ok := f.teams[teamID]
	if !ok || team.MemberCount == 0 {
		return repositories.ErrTeamMemberCountNegative
	}
	team.MemberCount--
	return nil
}

// UserRepository

type userStore struct{ *fakeStore }

func (f userStore) GetByID(ctx context.Context, id int) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return user, nil
}

func (f userStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (f userStore) UpdateSubscriptionMirror(ctx context.Context, userID int, mirror models.SubscriptionMirror) error {
	if f.mirrorFailures > 0 {
		f.mirrorFailures--
		return errors.New("transient mirror write failure")
	}
	user, ok := f.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.TeamID = mirror.TeamID
	user.IsTeamOwner = mirror.IsTeamOwner
	user.SubscriptionStatus = mirror.SubscriptionStatus
	user.ProviderCustomerID = mirror.ProviderCustomerID
	user.ProviderSubscriptionID = mirror.ProviderSubscriptionID
	return nil
}

func (f userStore) ClearTeam(ctx context.Context, userID int) error {
	user, ok := f.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	f.clearUserTeam(user)
	return nil
}

func (f *fakeStore) clearUserTeam(user *models.User) {
	user.TeamID = nil
	user.IsTeamOwner = false
	user.SubscriptionStatus = models.SubscriptionNone
	user.ProviderCustomerID = ""
	user.ProviderSubscriptionID = ""
}

// EventRepository

type eventStore struct{ *fakeStore }

func (f eventStore) Insert(ctx context.Context, event *models.WebhookEvent) error {
	if _, ok := f.events[event.EventID]; ok {
		return repositories.ErrEventAlreadyProcessed
	}
	event.ReceivedAt = time.Now()
	f.events[event.EventID] = event.ReceivedAt
	return nil
}

func (f eventStore) Delete(ctx context.Context, eventID string) error {
	delete(f.events, eventID)
	return nil
}

func (f eventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	for id, receivedAt := range f.events {
		if receivedAt.Before(cutoff) {
			delete(f.events, id)
			removed++
		}
	}
	return removed, nil
}

// Collaborator fakes.

type sentMail struct {
	To       string
	TeamName string
	Link     string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendTeamInviteEmail(toEmail, teamName, inviteLink string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: toEmail, TeamName: teamName, Link: inviteLink})
	return nil
}

type publishedEvent struct {
	TeamID int
	Type   string
}

type fakePublisher struct {
	events []publishedEvent
}

func (p *fakePublisher) Publish(teamID int, eventType string, payload any) {
	p.events = append(p.events, publishedEvent{TeamID: teamID, Type: eventType})
}

type fakeProvider struct {
	sub   *billing.Subscription
	err   error
	calls int
}

func (p *fakeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.sub, nil
}
