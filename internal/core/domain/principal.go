package domain

import "strings"

type Role string

const (
	RoleBuyer    Role = "Buyer"
	RoleSeller   Role = "Seller"
	RoleHelpdesk Role = "Helpdesk"
)

func ParseRole(s string) (Role, bool) {
	switch Role(strings.TrimSpace(s)) {
	case RoleBuyer:
		return RoleBuyer, true
	case RoleSeller:
		return RoleSeller, true
	case RoleHelpdesk:
		return RoleHelpdesk, true
	}
	return "", false
}

// Principal is an authenticated caller: an identity plus its role claim.
type Principal struct {
	ID   string
	Role Role
}

func (p Principal) Is(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// ListingActor is the caller on whose authority a listing is created or edited.
// Only SellerActor and HelpdeskActor satisfy it.
type ListingActor interface {
	OwnerID() string
	listingActor()
}

type SellerActor struct {
	SellerID string
}

func (a SellerActor) OwnerID() string { return a.SellerID }
func (SellerActor) listingActor() {}

type HelpdeskActor struct {
	StaffID    string
	OnBehalfOf string
}

func (a HelpdeskActor) OwnerID() string { return a.OnBehalfOf }
func (HelpdeskActor) listingActor() {}

// ListingActorFor resolves who is acting on sellerID's listings. Sellers may only
// act on their own listings (an empty sellerID means their own); helpdesk staff
// must name the seller; buyers are never listing actors.
func ListingActorFor(p Principal, sellerID string) (ListingActor, error) {
	sellerID = strings.TrimSpace(sellerID)
	switch p.Role {
	case RoleSeller:
		if sellerID != "" && sellerID != p.ID {
			return nil, ErrForbidden
		}
		return SellerActor{SellerID: p.ID}, nil
	case RoleHelpdesk:
		if sellerID == "" {
			return nil, ErrInvalidListing
		}
		return HelpdeskActor{StaffID: p.ID, OnBehalfOf: sellerID}, nil
	}
	return nil, ErrUnauthorized
}
