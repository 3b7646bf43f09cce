package rbac

import "github.com/google/uuid"

// Role constants. Roles are relative to a specific escrow: the same user
// is a buyer on one transaction and a seller on the next. Resolver is the
// only global role.
const (
	RoleBuyer    = "buyer"
	RoleSeller   = "seller"
	RoleResolver = "resolver"
	RoleNone     = "none"
)

// Permission constants
const (
	PermView           = "view"
	PermCancel         = "cancel"
	PermSubmitDelivery = "submit_delivery"
	PermConfirmRelease = "confirm_release"
	PermOpenDispute    = "open_dispute"
	PermRequestPayout  = "request_payout"
	PermReviewDispute  = "review_dispute"
	PermResolveDispute = "resolve_dispute"
)

// RolePermissions defines what each role can do on an escrow.
var RolePermissions = map[string][]string{
	RoleBuyer: {
		PermView, PermCancel, PermConfirmRelease, PermOpenDispute,
	},
	RoleSeller: {
		PermView, PermSubmitDelivery, PermOpenDispute, PermRequestPayout,
	},
	RoleResolver: {
		// Resolvers CANNOT move money: no release, no payout.
		PermView, PermReviewDispute, PermResolveDispute,
	},
}

// PartyRole derives the actor's role relative to one escrow. A resolver
// who is also a party acts as that party.
func PartyRole(buyerID, sellerID, actorID uuid.UUID, isResolver func(uuid.UUID) bool) string {
	switch {
	case actorID == buyerID:
		return RoleBuyer
	case actorID == sellerID:
		return RoleSeller
	case isResolver != nil && isResolver(actorID):
		return RoleResolver
	}
	return RoleNone
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
