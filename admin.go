package main

import (
	"github.com/juju/errors"
)

// Privileges decides who may run admin commands: the owner, or anyone
// holding one of the admin roles.
type Privileges struct {
	ownerID    string
	adminRoles map[string]struct{}
}

func NewPrivileges(ownerID string, adminRoleIDs []string) Privileges {
	roles := make(map[string]struct{}, len(adminRoleIDs))
	for _, id := range adminRoleIDs {
		roles[id] = struct{}{}
	}
	return Privileges{ownerID: ownerID, adminRoles: roles}
}

func (p Privileges) IsPrivileged(caller Identity) bool {
	if p.ownerID != "" && caller.UserID == p.ownerID {
		return true
	}
	for _, role := range caller.Roles {
		if _, ok := p.adminRoles[role]; ok {
			return true
		}
	}
	return false
}

func (p Privileges) require(caller Identity, action string) error {
	if !p.IsPrivileged(caller) {
		return errors.Annotatef(ErrPermissionDenied, "%s by %s", action, caller.UserID)
	}
	return nil
}
