package services

import "github.com/courseloft/teams-api/models"

// ComputeMemberPatches derives the per-member access updates for a
// team-level subscription status change. Pure; the repository applies
// the result as one transaction.
//
// Members keep access while the team is active or trialing. On any
// other status the member's own mirror is forced to canceled: unlike
// the owner, a member has no standing relationship with the provider,
// so past_due on the team reads as "no entitlement" for them.
func ComputeMemberPatches(members []*models.TeamMember, status models.SubscriptionStatus) []models.MemberPatch {
	patches := make([]models.MemberPatch, 0, len(members))
	for _, member := range members {
		if member.Status != models.MemberActive {
			continue
		}
		patch := models.MemberPatch{
			MemberID:  member.ID,
			UserID:    member.UserID,
			HasAccess: status.GrantsAccess(),
		}
		if patch.HasAccess {
			patch.MirrorStatus = status
		} else {
			patch.MirrorStatus = models.SubscriptionCanceled
		}
		patches = append(patches, patch)
	}
	return patches
}
