package services

import "errors"

// Sentinel errors shared across services and the HTTP mapping. Each
// business failure gets its own message so callers can tell categories
// apart ("invite expired" is not "subscription inactive").
var (
	// Not found
	ErrNotFound       = errors.New("requested resource not found")
	ErrTeamNotFound   = errors.New("team not found")
	ErrMemberNotFound = errors.New("team member not found")
	ErrInviteNotFound = errors.New("invite not found")
	ErrUserNotFound   = errors.New("user not found")

	// Permission
	ErrOwnerActionForbidden = errors.New("only the team owner can perform this action")
	ErrNotTeamMember        = errors.New("user is not a member of this team")

	// Preconditions and business rules
	ErrSubscriptionInactive  = errors.New("team subscription is not active")
	ErrInviteExpired         = errors.New("invite expired")
	ErrAlreadyInTeam         = errors.New("user already belongs to a team")
	ErrNoTeamMembership      = errors.New("user does not belong to a team")
	ErrOwnerCannotLeave      = errors.New("the team owner cannot leave the team")
	ErrOwnerCannotBeRemoved  = errors.New("the team owner cannot be removed")
	ErrMemberAlreadyRemoved  = errors.New("member has already been removed")
	ErrMemberNotInvited      = errors.New("member is not awaiting an invite")
	ErrMemberEmailConflict   = errors.New("email is already invited or active on this team")
	ErrEmailRequired         = errors.New("email is required")
	ErrEmailInvalid          = errors.New("email address is invalid")
	ErrInviteTokenGeneration = errors.New("failed to generate unique invite token")

	// Provider and configuration
	ErrCheckoutMetadataMissing = errors.New("checkout session metadata is missing user id or price id")
	ErrPriceNotConfigured      = errors.New("provider price id is not mapped to a plan")
	ErrProviderUnavailable     = errors.New("payment provider request failed")
)
