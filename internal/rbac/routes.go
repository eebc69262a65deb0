package rbac

import (
	"errors"
	"path"
	"sort"
	"strings"
)

// RouteGuard restricts a dashboard route to a set of roles and, optionally,
// to holders of a permission on a resource.
type RouteGuard struct {
	Roles      []Role     `json:"roles"`
	Resource   Resource   `json:"resource,omitempty"`
	Permission Permission `json:"permission,omitempty"`
}

var routeGuards = map[string]RouteGuard{
	"/dashboard/subjects": {
		Roles:    []Role{RoleAdministrator, RoleTeacher, RoleStudent},
		Resource: ResourceSubjects, Permission: PermissionRead,
	},
	"/dashboard/library": {
		Roles:    []Role{RoleAdministrator, RoleLibrarian, RoleTeacher, RoleStudent},
		Resource: ResourceBooks, Permission: PermissionRead,
	},
	"/dashboard/library/issues": {
		Roles:    []Role{RoleAdministrator, RoleLibrarian},
		Resource: ResourceBookIssues, Permission: PermissionRead,
	},
	"/dashboard/staff-management": {
		Roles:    []Role{RoleAdministrator},
		Resource: ResourceUsers, Permission: PermissionRead,
	},
	"/dashboard/leave-requests": {
		Roles:    []Role{RoleAdministrator, RoleTeacher, RoleStaff, RoleDriver, RoleLibrarian},
		Resource: ResourceLeaveRequests, Permission: PermissionRead,
	},
	"/dashboard/transport": {
		Roles:    []Role{RoleAdministrator, RoleStaff, RoleDriver},
		Resource: ResourceVehicles, Permission: PermissionRead,
	},
	"/dashboard/transport/bookings": {
		Roles:    []Role{RoleAdministrator, RoleStaff, RoleTeacher, RoleDriver},
		Resource: ResourceBookings, Permission: PermissionRead,
	},
	"/dashboard/transport/maintenance": {
		Roles:    []Role{RoleAdministrator, RoleStaff, RoleDriver},
		Resource: ResourceMaintenance, Permission: PermissionRead,
	},
	"/dashboard/performance": {
		Roles:    []Role{RoleAdministrator, RoleTeacher, RoleStudent},
		Resource: ResourcePerformance, Permission: PermissionRead,
	},
	"/dashboard/settings": {
		Roles:    []Role{RoleAdministrator},
		Resource: ResourceSettings, Permission: PermissionUpdate,
	},
	"/dashboard/roles": {
		Roles: []Role{RoleAdministrator},
	},
}

// UnguardedPolicy decides access to routes that have no guard entry.
type UnguardedPolicy string

const (
	// AllowUnguarded lets any authenticated role reach a route that was never
	// registered in the guard table. It matches the dashboard's behaviour and
	// under-protects new routes until they are registered.
	AllowUnguarded UnguardedPolicy = "allow"
	// DenyUnguarded rejects routes without a guard entry.
	DenyUnguarded UnguardedPolicy = "deny"
)

// ErrUnknownPolicy indicates an unsupported unguarded route policy value.
var ErrUnknownPolicy = errors.New("rbac: unknown unguarded route policy")

// ParseUnguardedPolicy converts configuration input into a policy.
func ParseUnguardedPolicy(raw string) (UnguardedPolicy, error) {
	switch UnguardedPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", AllowUnguarded:
		return AllowUnguarded, nil
	case DenyUnguarded:
		return DenyUnguarded, nil
	default:
		return "", ErrUnknownPolicy
	}
}

// Guard evaluates route access against the route guard table.
type Guard struct {
	policy UnguardedPolicy
}

// NewGuard constructs a Guard. An empty policy means AllowUnguarded.
func NewGuard(policy UnguardedPolicy) Guard {
	if policy == "" {
		policy = AllowUnguarded
	}
	return Guard{policy: policy}
}

// Policy returns the unguarded route policy in effect.
func (g Guard) Policy() UnguardedPolicy {
	if g.policy == "" {
		return AllowUnguarded
	}
	return g.policy
}

// CanAccessRoute reports whether the principal may open route. This is an
// advisory check for presentation; handlers must still enforce permissions.
func (g Guard) CanAccessRoute(p Principal, route string) bool {
	if _, ok := principalRole(p); !ok {
		return false
	}
	guard, ok := LookupRoute(route)
	if !ok {
		return g.Policy() == AllowUnguarded
	}
	if !HasRole(p, guard.Roles...) {
		return false
	}
	if guard.Resource != "" && guard.Permission != "" {
		return HasPermission(p, guard.Resource, guard.Permission)
	}
	return true
}

// CanAccessRoute applies the default guard.
func CanAccessRoute(p Principal, route string) bool {
	return NewGuard(AllowUnguarded).CanAccessRoute(p, route)
}

// LookupRoute returns the guard registered for route.
func LookupRoute(route string) (RouteGuard, bool) {
	guard, ok := routeGuards[CleanRoute(route)]
	if !ok {
		return RouteGuard{}, false
	}
	guard.Roles = append([]Role(nil), guard.Roles...)
	return guard, true
}

// Routes returns a copy of the guard table.
func Routes() map[string]RouteGuard {
	out := make(map[string]RouteGuard, len(routeGuards))
	for route := range routeGuards {
		out[route], _ = LookupRoute(route)
	}
	return out
}

// UnguardedRoutes returns the candidates that have no guard entry, sorted.
func UnguardedRoutes(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	var missing []string
	for _, candidate := range candidates {
		route := CleanRoute(candidate)
		if _, dup := seen[route]; dup {
			continue
		}
		seen[route] = struct{}{}
		if _, ok := routeGuards[route]; !ok {
			missing = append(missing, route)
		}
	}
	sort.Strings(missing)
	return missing
}

// CleanRoute strips query strings and fragments and normalises slashes.
func CleanRoute(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	route = strings.TrimSpace(route)
	if route == "" {
		return "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return path.Clean(route)
}
