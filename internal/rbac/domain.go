package rbac

import (
	"errors"
	"strings"
)

// ErrUnknownRole indicates a role outside the closed role set.
var ErrUnknownRole = errors.New("rbac: unknown role")

// ErrUnknownResource indicates a resource outside the closed resource set.
var ErrUnknownResource = errors.New("rbac: unknown resource")

// ErrUnknownPermission indicates a permission other than create/read/update/delete.
var ErrUnknownPermission = errors.New("rbac: unknown permission")

// Role is assigned server-side and stays fixed for the lifetime of a session.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleTeacher       Role = "teacher"
	RoleStudent       Role = "student"
	RoleStaff         Role = "staff"
	RoleDriver        Role = "driver"
	RoleLibrarian     Role = "librarian"
)

// AllRoles returns the closed role set in display order.
func AllRoles() []Role {
	return []Role{
		RoleAdministrator,
		RoleTeacher,
		RoleStudent,
		RoleStaff,
		RoleDriver,
		RoleLibrarian,
	}
}

// ParseRole normalises raw input into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", ErrUnknownRole
	}
	return role, nil
}

// Valid reports whether the role belongs to the closed role set.
func (r Role) Valid() bool {
	for _, known := range AllRoles() {
		if r == known {
			return true
		}
	}
	return false
}

// Resource names a protected domain object.
type Resource string

const (
	ResourceUsers         Resource = "users"
	ResourceStudents      Resource = "students"
	ResourceTeachers      Resource = "teachers"
	ResourceSubjects      Resource = "subjects"
	ResourceLessons       Resource = "lessons"
	ResourceAttendance    Resource = "attendance"
	ResourcePerformance   Resource = "performance"
	ResourceBooks         Resource = "books"
	ResourceBookIssues    Resource = "book_issues"
	ResourceLeaveRequests Resource = "leave_requests"
	ResourceVehicles      Resource = "vehicles"
	ResourceDrivers       Resource = "drivers"
	ResourceBookings      Resource = "bookings"
	ResourceMaintenance   Resource = "maintenance"
	ResourceSettings      Resource = "settings"
)

// AllResources returns the closed resource set.
func AllResources() []Resource {
	return []Resource{
		ResourceUsers,
		ResourceStudents,
		ResourceTeachers,
		ResourceSubjects,
		ResourceLessons,
		ResourceAttendance,
		ResourcePerformance,
		ResourceBooks,
		ResourceBookIssues,
		ResourceLeaveRequests,
		ResourceVehicles,
		ResourceDrivers,
		ResourceBookings,
		ResourceMaintenance,
		ResourceSettings,
	}
}

// ParseResource normalises raw input into a Resource.
func ParseResource(raw string) (Resource, error) {
	res := Resource(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllResources() {
		if res == known {
			return res, nil
		}
	}
	return "", ErrUnknownResource
}

// Permission is a single CRUD action.
type Permission string

const (
	PermissionCreate Permission = "create"
	PermissionRead   Permission = "read"
	PermissionUpdate Permission = "update"
	PermissionDelete Permission = "delete"
)

// AllPermissions returns the four CRUD actions in canonical order.
func AllPermissions() []Permission {
	return []Permission{PermissionCreate, PermissionRead, PermissionUpdate, PermissionDelete}
}

// ParsePermission normalises raw input into a Permission.
func ParsePermission(raw string) (Permission, error) {
	perm := Permission(strings.ToLower(strings.TrimSpace(raw)))
	if perm.bit() == 0 {
		return "", ErrUnknownPermission
	}
	return perm, nil
}

func (p Permission) bit() PermissionSet {
	switch p {
	case PermissionCreate:
		return Create
	case PermissionRead:
		return Read
	case PermissionUpdate:
		return Update
	case PermissionDelete:
		return Delete
	default:
		return None
	}
}

// PermissionSet is a bitmask of CRUD actions.
type PermissionSet uint8

const (
	Create PermissionSet = 1 << iota
	Read
	Update
	Delete

	None PermissionSet = 0
	CR                 = Create | Read
	RU                 = Read | Update
	CRU                = Create | Read | Update
	CRUD               = Create | Read | Update | Delete
)

// Has reports whether the set contains the permission.
func (s PermissionSet) Has(p Permission) bool {
	bit := p.bit()
	return bit != None && s&bit == bit
}

// Permissions lists the set members in canonical order.
func (s PermissionSet) Permissions() []Permission {
	perms := make([]Permission, 0, 4)
	for _, p := range AllPermissions() {
		if s.Has(p) {
			perms = append(perms, p)
		}
	}
	return perms
}

// Principal describes the authenticated actor.
type Principal interface {
	GetID() int64
	RoleName() string
}

func principalRole(p Principal) (Role, bool) {
	if isNilPrincipal(p) {
		return "", false
	}
	role := Role(p.RoleName())
	if !role.Valid() {
		return "", false
	}
	return role, true
}
