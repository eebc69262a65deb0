package rbac

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Profile carries how a role is presented on dashboard pages.
type Profile struct {
	Role  Role   `json:"role"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

type profileStyle struct {
	icon  string
	color string
}

var profileStyles = map[Role]profileStyle{
	RoleAdministrator: {icon: "shield", color: "red"},
	RoleTeacher:       {icon: "graduation-cap", color: "blue"},
	RoleStudent:       {icon: "book-open", color: "green"},
	RoleStaff:         {icon: "briefcase", color: "purple"},
	RoleDriver:        {icon: "bus", color: "orange"},
	RoleLibrarian:     {icon: "library", color: "teal"},
}

func init() {
	for _, role := range AllRoles() {
		if _, ok := profileStyles[role]; !ok {
			panic(fmt.Sprintf("rbac: profile table missing role %q", role))
		}
	}
}

// ProfileFor returns the presentation profile of role. Unknown roles get a
// neutral profile labelled with the raw value.
func ProfileFor(role Role) Profile {
	style, ok := profileStyles[role]
	if !ok {
		style = profileStyle{icon: "user", color: "gray"}
	}
	return Profile{
		Role:  role,
		Label: cases.Title(language.English).String(string(role)),
		Icon:  style.icon,
		Color: style.color,
	}
}

// Profiles returns the profiles of every role in display order.
func Profiles() []Profile {
	roles := AllRoles()
	out := make([]Profile, 0, len(roles))
	for _, role := range roles {
		out = append(out, ProfileFor(role))
	}
	return out
}
