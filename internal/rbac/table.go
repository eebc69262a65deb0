package rbac

import "fmt"

// Grants holds one permission set per resource. Rows are written as unkeyed
// literals so that adding a resource field fails to compile until every role
// has a value for it.
type Grants struct {
	Users         PermissionSet
	Students      PermissionSet
	Teachers      PermissionSet
	Subjects      PermissionSet
	Lessons       PermissionSet
	Attendance    PermissionSet
	Performance   PermissionSet
	Books         PermissionSet
	BookIssues    PermissionSet
	LeaveRequests PermissionSet
	Vehicles      PermissionSet
	Drivers       PermissionSet
	Bookings      PermissionSet
	Maintenance   PermissionSet
	Settings      PermissionSet
}

// For returns the permission set granted on res. Unknown resources get None.
func (g Grants) For(res Resource) PermissionSet {
	switch res {
	case ResourceUsers:
		return g.Users
	case ResourceStudents:
		return g.Students
	case ResourceTeachers:
		return g.Teachers
	case ResourceSubjects:
		return g.Subjects
	case ResourceLessons:
		return g.Lessons
	case ResourceAttendance:
		return g.Attendance
	case ResourcePerformance:
		return g.Performance
	case ResourceBooks:
		return g.Books
	case ResourceBookIssues:
		return g.BookIssues
	case ResourceLeaveRequests:
		return g.LeaveRequests
	case ResourceVehicles:
		return g.Vehicles
	case ResourceDrivers:
		return g.Drivers
	case ResourceBookings:
		return g.Bookings
	case ResourceMaintenance:
		return g.Maintenance
	case ResourceSettings:
		return g.Settings
	default:
		return None
	}
}

// Column order:
// users, students, teachers, subjects, lessons, attendance, performance,
// books, book_issues, leave_requests, vehicles, drivers, bookings,
// maintenance, settings.
var permissionTable = map[Role]Grants{
	RoleAdministrator: {
		CRUD, CRUD, CRUD, CRUD, CRUD, CRUD, CRUD,
		CRUD, CRUD, CRUD, CRUD, CRUD, CRUD,
		CRUD, CRUD,
	},
	RoleTeacher: {
		None, Read, Read, Read, CRUD, CRU, CRU,
		Read, Read, CR, None, None, CR,
		None, None,
	},
	RoleStudent: {
		None, Read, Read, Read, Read, Read, Read,
		Read, Read, CR, None, None, Read,
		None, None,
	},
	RoleStaff: {
		None, Read, Read, Read, None, Read, None,
		Read, None, CRU, Read, Read, CRU,
		CR, None,
	},
	RoleDriver: {
		None, None, None, None, None, None, None,
		None, None, CR, Read, Read, RU,
		CRU, None,
	},
	RoleLibrarian: {
		None, Read, Read, None, None, None, None,
		CRUD, CRUD, CR, None, None, None,
		None, None,
	},
}

func init() {
	for _, role := range AllRoles() {
		if _, ok := permissionTable[role]; !ok {
			panic(fmt.Sprintf("rbac: permission table missing role %q", role))
		}
	}
}

// GrantsFor returns the grants row for role. The second value is false for
// roles outside the table.
func GrantsFor(role Role) (Grants, bool) {
	g, ok := permissionTable[role]
	return g, ok
}

// PermissionsFor expands the role's grants into resource -> permissions.
// Resources without access map to an empty slice, never to a missing key.
func PermissionsFor(role Role) map[Resource][]Permission {
	g, ok := permissionTable[role]
	out := make(map[Resource][]Permission, len(AllResources()))
	for _, res := range AllResources() {
		if !ok {
			out[res] = []Permission{}
			continue
		}
		out[res] = g.For(res).Permissions()
	}
	return out
}
