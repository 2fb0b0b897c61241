package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/courseloft/teams-api/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type inviteFixture struct {
	store     *fakeStore
	mailer    *fakeMailer
	publisher *fakePublisher
	svc       *inviteService
}

func newInviteFixture(t *testing.T) *inviteFixture {
	t.Helper()
	store := newFakeStore()
	mailer := &fakeMailer{}
	publisher := &fakePublisher{}
	svc := NewInviteService(
		store,
		memberStore{store},
		userStore{store},
		mailer,
		publisher,
		"https://app.example.com",
		discardLogger(),
	).(*inviteService)
	return &inviteFixture{store: store, mailer: mailer, publisher: publisher, svc: svc}
}

// seedTeam creates an owner user and a team in the given status.
func (f *inviteFixture) seedTeam(status models.SubscriptionStatus) *models.Team {
	owner := f.store.addUser(&models.User{ID: 1, Email: "owner@example.com", Name: "Olive Owner"})
	team := f.store.addTeam(&models.Team{
		Name:                   "Olive's Team",
		OwnerID:                owner.ID,
		OwnerEmail:             owner.Email,
		OwnerName:              owner.Name,
		SubscriptionStatus:     status,
		ProviderSubscriptionID: "sub_123",
		ProviderCustomerID:     "cus_123",
	})
	owner.TeamID = &team.ID
	owner.IsTeamOwner = true
	owner.SubscriptionStatus = status
	return team
}

func TestInviteThenAcceptRoundTrip(t *testing.T) {
	f := newInviteFixture(t)
	team := f.seedTeam(models.SubscriptionActive)
	invitee := f.store.addUser(&models.User{ID: 2, Email: "a@b.com"})
	ctx := context.Background()

	member, err := f.svc.InviteMember(ctx, team.ID, "A@B.com", team.OwnerID)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	if member.Email != "a@b.com" {
		t.Errorf("email not lowercased: %q", member.Email)
	}
	if member.Status != models.MemberInvited || member.InviteToken == nil || member.InviteExpiresAt == nil {
		t.Fatalf("invited member missing token or expiry: %+v", member)
	}
	if team.MemberCount != 1 {
		t.Errorf("MemberCount = %d, want 1", team.MemberCount)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected 1 invite mail, got %d", len(f.mailer.sent))
	}
	wantLink := "https://app.example.com/invite/" + *member.InviteToken
	if f.mailer.sent[0].Link != wantLink {
		t.Errorf("invite link = %q, want %q", f.mailer.sent[0].Link, wantLink)
	}

	accepted, err := f.svc.AcceptInvite(ctx, *member.InviteToken, invitee.ID)
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if accepted.Status != models.MemberActive || !accepted.HasSubscriptionAccess {
		t.Errorf("accepted member not active with access: %+v", accepted)
	}
	if accepted.InviteToken != nil || accepted.InviteExpiresAt != nil {
		t.Errorf("token/expiry not cleared on accept: %+v", accepted)
	}
	if accepted.UserID == nil || *accepted.UserID != invitee.ID {
		t.Errorf("member not bound to accepting user")
	}
	if invitee.TeamID == nil || *invitee.TeamID != team.ID {
		t.Errorf("user mirror team not set")
	}
	if invitee.SubscriptionStatus != models.SubscriptionActive {
		t.Errorf("user mirror status = %q, want active", invitee.SubscriptionStatus)
	}
	if team.MemberCount != 1 {
		t.Errorf("MemberCount changed on accept: %d", team.MemberCount)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != EventMemberJoined {
		t.Errorf("expected one member_joined broadcast, got %+v", f.publisher.events)
	}
}

func TestInvitePreconditions(t *testing.T) {
	tests := []struct {
		name    string
		status  models.SubscriptionStatus
		email   string
		caller  int
		wantErr error
	}{
		{"inactive team", models.SubscriptionNone, "x@y.com", 1, ErrSubscriptionInactive},
		{"canceled team", models.SubscriptionCanceled, "x@y.com", 1, ErrSubscriptionInactive},
		{"past_due team", models.SubscriptionPastDue, "x@y.com", 1, ErrSubscriptionInactive},
		{"non-owner caller", models.SubscriptionActive, "x@y.com", 99, ErrOwnerActionForbidden},
		{"empty email", models.SubscriptionActive, "  ", 1, ErrEmailRequired},
		{"invalid email", models.SubscriptionActive, "not-an-email", 1, ErrEmailInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newInviteFixture(t)
			team := f.seedTeam(tt.status)

			_, err := f.svc.InviteMember(context.Background(), team.ID, tt.email, tt.caller)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("InviteMember error = %v, want %v", err, tt.wantErr)
			}
			if len(f.store.members) != 0 {
				t.Errorf("member created despite precondition failure")
			}
			if team.MemberCount != 0 {
				t.Errorf("MemberCount mutated: %d", team.MemberCount)
			}
			if len(f.mailer.sent) != 0 {
				t.Errorf("mail sent despite precondition failure")
			}
		})
	}
}

func TestInviteDuplicateEmail(t *testing.T) {
	f := newInviteFixture(t)
	team := f.seedTeam(models.SubscriptionTrialing)
	ctx := context.Background()

	if _, err := f.svc.InviteMember(ctx, team.ID, "dup@example.com", team.OwnerID); err != nil {
		t.Fatalf("first invite: %v", err)
	}
	_, err := f.svc.InviteMember(ctx, team.ID, "DUP@example.com", team.OwnerID)
	if !errors.Is(err, ErrMemberEmailConflict) {
		t.Fatalf("second invite error = %v, want %v", err, ErrMemberEmailConflict)
	}
	if team.MemberCount != 1 {
		t.Errorf("MemberCount = %d, want 1", team.MemberCount)
	}
}

func TestAcceptInviteExpiryBoundary(t *testing.T) {
	f := newInviteFixture(t)
	team := f.seedTeam(models.SubscriptionActive)
	f.store.addUser(&models.User{ID: 2, Email: "a@b.com"})
	ctx := context.Background()

	member, err := f.svc.InviteMember(ctx, team.ID, "a@b.com", team.OwnerID)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	expiresAt := *member.InviteExpiresAt

	// Exactly at the expiry instant the invite is dead.
	f.svc.now = func() time.Time { return expiresAt }
	if _, err := f.svc.AcceptInvite(ctx, *member.InviteToken, 2); !errors.Is(err, ErrInviteExpired) {
		t.Fatalf("accept at expiry: error = %v, want %v", err, ErrInviteExpired)
	}

	// One second earlier it is still live.
	f.svc.now = func() time.Time { return expiresAt.Add(-time.Second) }
	if _, err := f.svc.AcceptInvite(ctx, *member.InviteToken, 2); err != nil {
		t.Fatalf("accept one second before expiry: %v", err)
	}
}

func TestAcceptInviteRejections(t *testing.T) {
	f := newInviteFixture(t)
	team := f.seedTeam(models.SubscriptionActive)
	ctx := context.Background()

	member, err := f.svc.InviteMember(ctx, team.ID, "a@b.com", team.OwnerID)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	if _, err := f.svc.AcceptInvite(ctx, "no-such-token", 2); !errors.Is(err, ErrInviteNotFound) {
		t.Errorf("unknown token: error = %v, want %v", err, ErrInviteNotFound)
	}

	// A user already on another team cannot accept.
	otherTeamID := 42
	f.store.addTeam(&models.Team{ID: otherTeamID, OwnerID: 9, SubscriptionStatus: models.SubscriptionActive})
	f.store.addUser(&models.User{ID: 3, Email: "other@b.com", TeamID: &otherTeamID})
	if _, err := f.svc.AcceptInvite(ctx, *member.InviteToken, 3); !errors.Is(err, ErrAlreadyInTeam) {
		t.Errorf("member of another team: error = %v, want %v", err, ErrAlreadyInTeam)
	}

	// Someone already on the inviting team is rejected too; a user
	// holds at most one active membership row.
	f.store.addUser(&models.User{ID: 5, Email: "already@b.com", TeamID: &team.ID})
	if _, err := f.svc.AcceptInvite(ctx, *member.InviteToken, 5); !errors.Is(err, ErrAlreadyInTeam) {
		t.Errorf("member of the inviting team: error = %v, want %v", err, ErrAlreadyInTeam)
	}

	// A team whose subscription lapsed cannot take new members.
	team.SubscriptionStatus = models.SubscriptionCanceled
	f.store.addUser(&models.User{ID: 4, Email: "new@b.com"})
	if _, err := f.svc.AcceptInvite(ctx, *member.InviteToken, 4); !errors.Is(err, ErrSubscriptionInactive) {
		t.Errorf("lapsed team: error = %v, want %v", err, ErrSubscriptionInactive)
	}
}

func TestDeclineInvite(t *testing.T) {
	f := newInviteFixture(t)
	team := f.seedTeam(models.SubscriptionActive)
	ctx := context.Background()

	member, err := f.svc.InviteMember(ctx, team.ID, "a@b.com", team.OwnerID)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	if err := f.svc.DeclineInvite(ctx, *member.InviteToken); err != nil {
		t.Fatalf("DeclineInvite: %v", err)
	}
	if len(f.store.members) != 0 {
		t.Errorf("member row not deleted on decline")
	}
	if team.MemberCount != 0 {
		t.Errorf("MemberCount = %d, want 0", team.MemberCount)
	}

	if err := f.svc.DeclineInvite(ctx, *member.InviteToken); !errors.Is(err, ErrInviteNotFound) {
		t.Errorf("second decline error = %v, want %v", err, ErrInviteNotFound)
	}
}

// An expired invite is never swept, so declining it must still work
// and clean the row up.
func TestDeclineExpiredInviteSucceeds(t *testing.T) {
	f := newInviteFixture(t)
	team := f.seedTeam(models.SubscriptionActive)
	ctx := context.Background()

	member, err := f.svc.InviteMember(ctx, team.ID, "a@b.com", team.OwnerID)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	expired := time.Now().Add(-time.Hour)
	member.InviteExpiresAt = &expired

	if err := f.svc.DeclineInvite(ctx, *member.InviteToken); err != nil {
		t.Fatalf("decline of expired invite: %v", err)
	}
	if len(f.store.members) != 0 || team.MemberCount != 0 {
		t.Errorf("expired invite not cleaned up: members=%d count=%d", len(f.store.members), team.MemberCount)
	}
}

func TestLeaveTeam(t *testing.T) {
	f := newInviteFixture(t)
	team := f.seedTeam(models.SubscriptionActive)
	invitee := f.store.addUser(&models.User{ID: 2, Email: "a@b.com"})
	ctx := context.Background()

	member, err := f.svc.InviteMember(ctx, team.ID, "a@b.com", team.OwnerID)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	if _, err := f.svc.AcceptInvite(ctx, *member.InviteToken, invitee.ID); err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}

	// The owner cannot leave; nothing may change.
	if err := f.svc.LeaveTeam(ctx, team.OwnerID); !errors.Is(err, ErrOwnerCannotLeave) {
		t.Fatalf("owner leave error = %v, want %v", err, ErrOwnerCannotLeave)
	}
	if team.MemberCount != 1 || member.Status != models.MemberActive {
		t.Errorf("owner leave mutated state")
	}

	if err := f.svc.LeaveTeam(ctx, invitee.ID); err != nil {
		t.Fatalf("LeaveTeam: %v", err)
	}
	if member.Status != models.MemberRemoved || member.HasSubscriptionAccess {
		t.Errorf("membership not removed: %+v", member)
	}
	if invitee.TeamID != nil || invitee.SubscriptionStatus != models.SubscriptionNone {
		t.Errorf("user mirror not cleared: %+v", invitee)
	}
	if team.MemberCount != 0 {
		t.Errorf("MemberCount = %d, want 0", team.MemberCount)
	}

	if err := f.svc.LeaveTeam(ctx, invitee.ID); !errors.Is(err, ErrNoTeamMembership) {
		t.Errorf("second leave error = %v, want %v", err, ErrNoTeamMembership)
	}
}

func TestRemoveMember(t *testing.T) {
	f := newInviteFixture(t)
	team := f.seedTeam(models.SubscriptionActive)
	invitee := f.store.addUser(&models.User{ID: 2, Email: "a@b.com"})
	ctx := context.Background()

	member, err := f.svc.InviteMember(ctx, team.ID, "a@b.com", team.OwnerID)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	if _, err := f.svc.AcceptInvite(ctx, *member.InviteToken, invitee.ID); err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}

	if err := f.svc.RemoveMember(ctx, team.ID, member.ID, invitee.ID); !errors.Is(err, ErrOwnerActionForbidden) {
		t.Errorf("non-owner remove error = %v, want %v", err, ErrOwnerActionForbidden)
	}

	if err := f.svc.RemoveMember(ctx, team.ID, member.ID, team.OwnerID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if member.Status != models.MemberRemoved || member.HasSubscriptionAccess {
		t.Errorf("member not removed: %+v", member)
	}
	if invitee.TeamID != nil {
		t.Errorf("removed member's user mirror not cleared")
	}
	if team.MemberCount != 0 {
		t.Errorf("MemberCount = %d, want 0", team.MemberCount)
	}

	if err := f.svc.RemoveMember(ctx, team.ID, member.ID, team.OwnerID); !errors.Is(err, ErrMemberAlreadyRemoved) {
		t.Errorf("double remove error = %v, want %v", err, ErrMemberAlreadyRemoved)
	}
}

func TestResendInviteExtendsExpiryWithoutRotatingToken(t *testing.T) {
	f := newInviteFixture(t)
	team := f.seedTeam(models.SubscriptionActive)
	ctx := context.Background()

	member, err := f.svc.InviteMember(ctx, team.ID, "a@b.com", team.OwnerID)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	originalToken := *member.InviteToken
	originalExpiry := *member.InviteExpiresAt

	later := time.Now().Add(48 * time.Hour)
	f.svc.now = func() time.Time { return later }

	resent, err := f.svc.ResendInvite(ctx, team.ID, member.ID, team.OwnerID)
	if err != nil {
		t.Fatalf("ResendInvite: %v", err)
	}
	if *resent.InviteToken != originalToken {
		t.Errorf("token rotated on resend")
	}
	wantExpiry := later.Add(inviteDuration)
	if !resent.InviteExpiresAt.Equal(wantExpiry) {
		t.Errorf("expiry = %v, want %v", resent.InviteExpiresAt, wantExpiry)
	}
	if resent.InviteExpiresAt.Equal(originalExpiry) {
		t.Errorf("expiry not extended")
	}
	if len(f.mailer.sent) != 2 {
		t.Errorf("expected resend mail, got %d sends", len(f.mailer.sent))
	}
}

func TestResendInviteRequiresInvitedStatus(t *testing.T) {
	f := newInviteFixture(t)
	team := f.seedTeam(models.SubscriptionActive)
	invitee := f.store.addUser(&models.User{ID: 2, Email: "a@b.com"})
	ctx := context.Background()

	member, err := f.svc.InviteMember(ctx, team.ID, "a@b.com", team.OwnerID)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	if _, err := f.svc.AcceptInvite(ctx, *member.InviteToken, invitee.ID); err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}

	if _, err := f.svc.ResendInvite(ctx, team.ID, member.ID, team.OwnerID); !errors.Is(err, ErrMemberNotInvited) {
		t.Errorf("resend on active member error = %v, want %v", err, ErrMemberNotInvited)
	}
}

// memberCount must always equal the number of invited plus active
// members, across a mixed sequence of operations.
func TestMemberCountInvariant(t *testing.T) {
	f := newInviteFixture(t)
	team := f.seedTeam(models.SubscriptionActive)
	ctx := context.Background()

	checkInvariant := func(step string) {
		t.Helper()
		live := 0
		for _, member := range f.store.members {
			if member.TeamID == team.ID && member.Status != models.MemberRemoved {
				live++
			}
		}
		if team.MemberCount != live {
			t.Fatalf("%s: MemberCount = %d, live members = %d", step, team.MemberCount, live)
		}
	}

	first, err := f.svc.InviteMember(ctx, team.ID, "one@x.com", team.OwnerID)
	if err != nil {
		t.Fatal(err)
	}
	checkInvariant("after first invite")

	second, err := f.svc.InviteMember(ctx, team.ID, "two@x.com", team.OwnerID)
	if err != nil {
		t.Fatal(err)
	}
	checkInvariant("after second invite")

	userOne := f.store.addUser(&models.User{ID: 11, Email: "one@x.com"})
	if _, err := f.svc.AcceptInvite(ctx, *first.InviteToken, userOne.ID); err != nil {
		t.Fatal(err)
	}
	checkInvariant("after accept")

	if err := f.svc.DeclineInvite(ctx, *second.InviteToken); err != nil {
		t.Fatal(err)
	}
	checkInvariant("after decline")

	if err := f.svc.LeaveTeam(ctx, userOne.ID); err != nil {
		t.Fatal(err)
	}
	checkInvariant("after leave")
}
