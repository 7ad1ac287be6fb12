package recommendation

import (
	"fmt"
	"strings"
)

type RequestType string

const (
	RequestTypeDirectPlatform RequestType = "direct_platform"
	RequestTypeSchoolDirect   RequestType = "school_direct"
	RequestTypeHybrid         RequestType = "hybrid"
)

type SubmissionMethod string

const (
	SubmissionPlatformOnly SubmissionMethod = "platform_only"
	SubmissionSchoolOnly   SubmissionMethod = "school_only"
	SubmissionBoth         SubmissionMethod = "both"
)

// Route is one of the legal request type and submission method pairs.
// The zero value is not a valid route; use ParseRoute or one of the
// exported route values.
type Route struct {
	requestType RequestType
	method      SubmissionMethod
}

var (
	RoutePlatform   = Route{requestType: RequestTypeDirectPlatform, method: SubmissionPlatformOnly}
	RouteSchoolOnly = Route{requestType: RequestTypeSchoolDirect, method: SubmissionSchoolOnly}
	RouteHybrid     = Route{requestType: RequestTypeHybrid, method: SubmissionBoth}
)

var routes = []Route{RoutePlatform, RouteSchoolOnly, RouteHybrid}

// ParseRoute returns the route for a pair, or ErrInvalidPolicy when the
// pair is not routable.
func ParseRoute(requestType RequestType, method SubmissionMethod) (Route, error) {
	rt := RequestType(strings.TrimSpace(string(requestType)))
	sm := SubmissionMethod(strings.TrimSpace(string(method)))
	for _, route := range routes {
		if route.requestType == rt && route.method == sm {
			return route, nil
		}
	}
	return Route{}, fmt.Errorf("%w: %q with %q", ErrInvalidPolicy, rt, sm)
}

func (r Route) RequestType() RequestType { return r.requestType }

func (r Route) SubmissionMethod() SubmissionMethod { return r.method }

func (r Route) IsZero() bool { return r == Route{} }

func (r Route) String() string {
	return string(r.requestType) + "/" + string(r.method)
}
