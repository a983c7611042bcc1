package acl

import (
	"github.com/samber/lo"

	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

const (
	PermWaitlistJoin       = "waitlist.join"
	PermWaitlistJoinLocked = "waitlist.join.locked"
	PermWaitlistAdd        = "waitlist.add"
	PermWaitlistRemove     = "waitlist.remove"
	PermWaitlistMove       = "waitlist.move"
	PermWaitlistClear      = "waitlist.clear"
	PermWaitlistLock       = "waitlist.lock"
	PermBoothVote          = "booth.vote"
	PermBoothSkipSelf      = "booth.skip.self"
	PermBoothSkipOther     = "booth.skip.other"
	PermBoothReplace       = "booth.replace"

	wildcard = "*"
)

// Roles maps a role name to the permissions it grants. A role may include
// other roles by name.
type Roles map[string][]string

// DefaultRoles mirrors the stock üWave role set.
func DefaultRoles() Roles {
	return Roles{
		"user": {
			PermWaitlistJoin,
			PermBoothVote,
			PermBoothSkipSelf,
		},
		"moderator": {
			"user",
			PermWaitlistJoinLocked,
			PermWaitlistAdd,
			PermWaitlistRemove,
			PermWaitlistMove,
			PermWaitlistLock,
			PermBoothSkipOther,
		},
		"manager": {
			"moderator",
			PermWaitlistClear,
			PermBoothReplace,
		},
		"admin": {wildcard},
	}
}

type ACL struct {
	roles Roles
}

func New(roles Roles) *ACL {
	return &ACL{roles: roles}
}

// IsAllowed reports whether any of the user's roles grants permission.
func (a *ACL) IsAllowed(user *models.User, permission string) bool {
	if user == nil {
		return false
	}
	granted := a.expand(user.Roles, map[string]bool{})
	return lo.Contains(granted, wildcard) || lo.Contains(granted, permission)
}

// Permissions lists every permission the user holds.
func (a *ACL) Permissions(user *models.User) []string {
	if user == nil {
		return nil
	}
	return lo.Uniq(a.expand(user.Roles, map[string]bool{}))
}

func (a *ACL) expand(names []string, seen map[string]bool) []string {
	var out []string
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		grants, isRole := a.roles[name]
		if !isRole {
			out = append(out, name)
			continue
		}
		out = append(out, a.expand(grants, seen)...)
	}
	return out
}
