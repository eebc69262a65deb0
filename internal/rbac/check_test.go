package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schooldesk/schooldesk/internal/shared"
)

func TestNoPrincipalHasNoPermission(t *testing.T) {
	var typedNil *shared.Identity
	for _, res := range AllResources() {
		for _, perm := range AllPermissions() {
			assert.False(t, HasPermission(nil, res, perm))
			assert.False(t, HasPermission(typedNil, res, perm))
		}
	}
	assert.False(t, HasRole(nil, RoleAdministrator))
	assert.False(t, HasRole(typedNil, AllRoles()...))
}

func TestHasRoleSingleAndListAgree(t *testing.T) {
	for _, held := range AllRoles() {
		p := principal(held)
		for _, asked := range AllRoles() {
			single := HasRole(p, asked)
			assert.Equal(t, single, HasRole(p, []Role{asked}...), "%s asked %s", held, asked)
			assert.Equal(t, held == asked, single)
		}
	}
}

func TestHasRoleHasNoHierarchy(t *testing.T) {
	admin := principal(RoleAdministrator)
	assert.False(t, HasRole(admin, RoleTeacher))
	assert.True(t, HasRole(admin, RoleTeacher, RoleAdministrator))
	assert.False(t, HasRole(admin))
}
