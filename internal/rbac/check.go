package rbac

import "reflect"

// HasPermission reports whether the principal's role grants perm on res.
// Only explicitly listed (role, resource, permission) triples are allowed.
func HasPermission(p Principal, res Resource, perm Permission) bool {
	role, ok := principalRole(p)
	if !ok {
		return false
	}
	grants, ok := permissionTable[role]
	if !ok {
		return false
	}
	return grants.For(res).Has(perm)
}

// CanCreate is shorthand for HasPermission(p, res, PermissionCreate).
func CanCreate(p Principal, res Resource) bool { return HasPermission(p, res, PermissionCreate) }

// CanRead is shorthand for HasPermission(p, res, PermissionRead).
func CanRead(p Principal, res Resource) bool { return HasPermission(p, res, PermissionRead) }

// CanUpdate is shorthand for HasPermission(p, res, PermissionUpdate).
func CanUpdate(p Principal, res Resource) bool { return HasPermission(p, res, PermissionUpdate) }

// CanDelete is shorthand for HasPermission(p, res, PermissionDelete).
func CanDelete(p Principal, res Resource) bool { return HasPermission(p, res, PermissionDelete) }

// HasRole reports whether the principal holds one of roles. There is no role
// hierarchy: administrator does not satisfy a teacher-only check.
func HasRole(p Principal, roles ...Role) bool {
	role, ok := principalRole(p)
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func isNilPrincipal(p Principal) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
