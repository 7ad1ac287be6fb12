// Package policy decides who receives a recommendation request and how the
// recommender is told to submit.
package policy

import (
	"fmt"

	"letters/api/internal/recommendation"
)

// Variant selects the submission instructions shown to the recommender.
type Variant string

const (
	VariantPlatform   Variant = "platform"
	VariantSchoolOnly Variant = "school_only"
	VariantHybrid     Variant = "hybrid"
)

// Role identifies a party addressed by the initial message.
type Role string

const (
	RoleRecommender Role = "recommender"
	RoleSchool      Role = "school"
)

type Delivery struct {
	Recipients        []Role
	IncludePortalLink bool
	Variant           Variant
}

// Resolve returns the delivery policy for a request type and submission
// method. Pairs outside the policy table fail with ErrInvalidPolicy.
func Resolve(requestType recommendation.RequestType, method recommendation.SubmissionMethod) (Delivery, error) {
	route, err := recommendation.ParseRoute(requestType, method)
	if err != nil {
		return Delivery{}, err
	}
	return For(route)
}

// For returns the delivery policy for a validated route.
func For(route recommendation.Route) (Delivery, error) {
	switch route {
	case recommendation.RoutePlatform:
		return Delivery{
			Recipients:        []Role{RoleRecommender},
			IncludePortalLink: true,
			Variant:           VariantPlatform,
		}, nil
	case recommendation.RouteSchoolOnly:
		return Delivery{
			Recipients:        []Role{RoleRecommender, RoleSchool},
			IncludePortalLink: false,
			Variant:           VariantSchoolOnly,
		}, nil
	case recommendation.RouteHybrid:
		return Delivery{
			Recipients:        []Role{RoleRecommender, RoleSchool},
			IncludePortalLink: true,
			Variant:           VariantHybrid,
		}, nil
	default:
		return Delivery{}, fmt.Errorf("%w: %s", recommendation.ErrInvalidPolicy, route)
	}
}

// Addresses maps the policy roles to email addresses for a request. The
// school is copied only when an address is on file.
func (d Delivery) Addresses(req recommendation.Request) (to []string, cc []string) {
	for _, role := range d.Recipients {
		switch role {
		case RoleRecommender:
			to = append(to, req.Recommender.Email)
		case RoleSchool:
			if req.SchoolEmail != "" {
				cc = append(cc, req.SchoolEmail)
			}
		}
	}
	return to, cc
}
