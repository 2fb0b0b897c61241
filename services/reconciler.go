package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/courseloft/teams-api/billing"
	"github.com/courseloft/teams-api/models"
	"github.com/courseloft/teams-api/repositories"
)

// defaultTrialPeriod is used when the live trial-end lookup fails
// during checkout.
const defaultTrialPeriod = 14 * 24 * time.Hour

// Plan is a subscription tier derived from a provider price id.
type Plan struct {
	Name string
	Term time.Duration
}

// PurchaseRecorder handles payment-mode (one-off) checkouts. Optional;
// subscription lifecycle does not depend on it.
type PurchaseRecorder interface {
	RecordOneOff(ctx context.Context, session *billing.CheckoutSession) error
}

// Reconciler translates payment-provider events into entitlement
// mutations. Handlers are safe to re-run: the idempotency ledger
// rejects redelivered event ids before any mutation, and a failed
// delivery releases its ledger entry so the provider's retry can
// succeed.
type Reconciler interface {
	HandleEvent(ctx context.Context, event *billing.Event) error
}

type reconciler struct {
	teams     repositories.TeamRepository
	members   repositories.MemberRepository
	users     repositories.UserRepository
	events    repositories.EventRepository
	provider  billing.Client
	plans     map[string]Plan
	purchases PurchaseRecorder
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewReconciler(
	teams repositories.TeamRepository,
	members repositories.MemberRepository,
	users repositories.UserRepository,
	events repositories.EventRepository,
	provider billing.Client,
	plans map[string]Plan,
	purchases PurchaseRecorder,
	publisher EventPublisher,
	logger *slog.Logger,
) Reconciler {
	return &reconciler{
		teams:     teams,
		members:   members,
		users:     users,
		events:    events,
		provider:  provider,
		plans:     plans,
		purchases: purchases,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *reconciler) HandleEvent(ctx context.Context, event *billing.Event) error {
	ledgerEntry := &models.WebhookEvent{EventID: event.ID, EventType: event.Type}
	if err := s.events.Insert(ctx, ledgerEntry); err != nil {
		if errors.Is(err, repositories.ErrEventAlreadyProcessed) {
			s.logger.Info("duplicate webhook event ignored",
				slog.String("event_id", event.ID),
				slog.String("event_type", event.Type))
			return nil
		}
		return fmt.Errorf("failed to record event %s in ledger: %w", event.ID, err)
	}

	if err := s.dispatch(ctx, event); err != nil {
		// Release the ledger entry so the provider's redelivery is not
		// rejected as a duplicate.
		if delErr := s.events.Delete(ctx, event.ID); delErr != nil {
			s.logger.Error("failed to release ledger entry after handler error",
				slog.String("event_id", event.ID),
				slog.Any("error", delErr))
		}
		return err
	}
	return nil
}

func (s *reconciler) dispatch(ctx context.Context, event *billing.Event) error {
	switch event.Type {
	case billing.EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case billing.EventSubscriptionCreated:
		// The team is created by checkout-completed, which carries the
		// purchaser metadata this event lacks. Acknowledge only.
		return nil
	case billing.EventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, event)
	case billing.EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case billing.EventInvoicePaid:
		return s.handleInvoicePaid(ctx, event)
	case billing.EventInvoiceFailed:
		return s.handleInvoiceFailed(ctx, event)
	default:
		s.logger.Info("unhandled webhook event type acknowledged",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type))
		return nil
	}
}

func (s *reconciler) handleCheckoutCompleted(ctx context.Context, event *billing.Event) error {
	var session billing.CheckoutSession
	if err := json.Unmarshal(event.Object, &session); err != nil {
		return fmt.Errorf("failed to decode checkout session: %w", err)
	}

	if session.Mode != "subscription" {
		if s.purchases != nil {
			return s.purchases.RecordOneOff(ctx, &session)
		}
		s.logger.Info("payment-mode checkout without purchase recorder, skipped",
			slog.String("session_id", session.ID))
		return nil
	}

	userIDStr := session.Metadata["user_id"]
	priceID := session.Metadata["price_id"]
	if userIDStr == "" || priceID == "" {
		return fmt.Errorf("%w: session %s", ErrCheckoutMetadataMissing, session.ID)
	}
	userID, err := strconv.Atoi(userIDStr)
	if err != nil {
		return fmt.Errorf("%w: bad user id %q", ErrCheckoutMetadataMissing, userIDStr)
	}

	plan, ok := s.plans[priceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrPriceNotConfigured, priceID)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load purchaser %d: %w", userID, err)
	}

	start := s.now()
	end := start.Add(plan.Term)
	trialEnd := s.resolveTrialEnd(ctx, session.Subscription, start)

	teamName := session.Metadata["team_name"]
	if teamName == "" {
		if user.Name != "" {
			teamName = user.Name + "'s Team"
		} else {
			teamName = user.Email + "'s Team"
		}
	}

	team := &models.Team{
		Name:                   teamName,
		OwnerID:                user.ID,
		OwnerEmail:             user.Email,
		OwnerName:              user.Name,
		SubscriptionStatus:     models.SubscriptionActive,
		SubscriptionPlan:       plan.Name,
		SubscriptionStartDate:  &start,
		SubscriptionEndDate:    &end,
		TrialEndDate:           trialEnd,
		ProviderSubscriptionID: session.Subscription,
		ProviderCustomerID:     session.Customer,
		ProviderPriceID:        priceID,
	}
	if err := s.teams.Create(ctx, team); err != nil {
		if !errors.Is(err, repositories.ErrTeamSubscriptionExists) {
			return fmt.Errorf("failed to create team for subscription %s: %w", session.Subscription, err)
		}
		// Redelivery after a partial failure: the team exists but the
		// owner mirror write may not have landed. Load the live row and
		// fall through so the mirror is re-applied.
		existing, getErr := s.teams.GetByProviderSubscriptionID(ctx, session.Subscription)
		if getErr != nil {
			return fmt.Errorf("failed to load team for subscription %s: %w", session.Subscription, getErr)
		}
		team = existing
		s.logger.Warn("team already exists for subscription, re-applying owner mirror",
			slog.String("subscription_id", session.Subscription),
			slog.Int("team_id", team.ID))
	}

	mirror := models.SubscriptionMirror{
		TeamID:                 &team.ID,
		IsTeamOwner:            true,
		SubscriptionStatus:     team.SubscriptionStatus,
		ProviderCustomerID:     session.Customer,
		ProviderSubscriptionID: session.Subscription,
	}
	if err := s.users.UpdateSubscriptionMirror(ctx, user.ID, mirror); err != nil {
		return fmt.Errorf("failed to mirror subscription onto owner %d: %w", user.ID, err)
	}

	s.logger.Info("team created from checkout",
		slog.Int("team_id", team.ID),
		slog.Int("owner_id", user.ID),
		slog.String("plan", plan.Name))
	return nil
}

// resolveTrialEnd asks the provider for the live trial end. Lookup
// failure is not fatal; a computed default keeps checkout moving.
func (s *reconciler) resolveTrialEnd(ctx context.Context, subscriptionID string, start time.Time) *time.Time {
	live, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		s.logger.Warn("trial-end lookup failed, using default",
			slog.String("subscription_id", subscriptionID),
			slog.Any("error", err))
		fallback := start.Add(defaultTrialPeriod)
		return &fallback
	}
	if live.TrialEnd > 0 {
		t := time.Unix(live.TrialEnd, 0)
		return &t
	}
	return nil
}

func (s *reconciler) handleSubscriptionUpdated(ctx context.Context, event *billing.Event) error {
	var sub billing.Subscription
	if err := json.Unmarshal(event.Object, &sub); err != nil {
		return fmt.Errorf("failed to decode subscription: %w", err)
	}

	status, err := billing.MapProviderStatus(sub.Status)
	if err != nil {
		return err
	}

	var endDate *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0)
		endDate = &t
	}
	return s.cascade(ctx, sub.ID, status, endDate)
}

func (s *reconciler) handleSubscriptionDeleted(ctx context.Context, event *billing.Event) error {
	var sub billing.Subscription
	if err := json.Unmarshal(event.Object, &sub); err != nil {
		return fmt.Errorf("failed to decode subscription: %w", err)
	}
	return s.cascade(ctx, sub.ID, models.SubscriptionCanceled, nil)
}

func (s *reconciler) handleInvoicePaid(ctx context.Context, event *billing.Event) error {
	var invoice billing.Invoice
	if err := json.Unmarshal(event.Object, &invoice); err != nil {
		return fmt.Errorf("failed to decode invoice: %w", err)
	}
	if invoice.Subscription == "" {
		return nil
	}

	// A paid invoice only restores access when the live subscription
	// really is active; the lookup failing skips the event gracefully.
	live, err := s.provider.GetSubscription(ctx, invoice.Subscription)
	if err != nil {
		s.logger.Warn("live status lookup failed on invoice.paid, skipped",
			slog.String("subscription_id", invoice.Subscription),
			slog.Any("error", err))
		return nil
	}
	if live.Status != "active" {
		return nil
	}

	var endDate *time.Time
	if live.CurrentPeriodEnd > 0 {
		t := time.Unix(live.CurrentPeriodEnd, 0)
		endDate = &t
	}
	return s.cascade(ctx, invoice.Subscription, models.SubscriptionActive, endDate)
}

func (s *reconciler) handleInvoiceFailed(ctx context.Context, event *billing.Event) error {
	var invoice billing.Invoice
	if err := json.Unmarshal(event.Object, &invoice); err != nil {
		return fmt.Errorf("failed to decode invoice: %w", err)
	}
	if invoice.Subscription == "" {
		return nil
	}
	// No live consult: the failed invoice itself is the signal.
	return s.cascade(ctx, invoice.Subscription, models.SubscriptionPastDue, nil)
}

// cascade fans a team-level status change out to the owner mirror and
// every active member in one atomic batch. A team missing for the
// subscription id is logged and acknowledged; redelivery cannot fix it.
func (s *reconciler) cascade(ctx context.Context, providerSubscriptionID string, status models.SubscriptionStatus, endDate *time.Time) error {
	team, err := s.teams.GetByProviderSubscriptionID(ctx, providerSubscriptionID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			s.logger.Warn("no team for provider subscription, event acknowledged",
				slog.String("subscription_id", providerSubscriptionID))
			return nil
		}
		return fmt.Errorf("failed to locate team for subscription %s: %w", providerSubscriptionID, err)
	}

	activeMembers, err := s.members.ListActiveByTeamID(ctx, team.ID)
	if err != nil {
		return fmt.Errorf("failed to list members of team %d: %w", team.ID, err)
	}

	patches := ComputeMemberPatches(activeMembers, status)
	if err := s.teams.ApplySubscriptionCascade(ctx, team, status, endDate, patches); err != nil {
		return fmt.Errorf("failed to apply cascade for team %d: %w", team.ID, err)
	}

	s.logger.Info("subscription cascade applied",
		slog.Int("team_id", team.ID),
		slog.String("status", string(status)),
		slog.Int("members_patched", len(patches)))

	if s.publisher != nil {
		s.publisher.Publish(team.ID, EventSubscriptionUpdated, map[string]any{
			"subscription_status":   status,
			"subscription_end_date": endDate,
		})
	}
	return nil
}
