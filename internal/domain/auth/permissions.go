package auth

import (
	"context"
	"strings"
)

const (
	RoleEmployee    = "employee"
	RoleManager     = "manager"
	RoleHR          = "hr"
	RoleAccountant  = "accountant"
	RoleSystemAdmin = "system_admin"
)

const (
	PermPayrollRead  = "payroll.read"
	PermPayrollWrite = "payroll.write"
	PermAuditRead    = "audit.read"
	PermSystemAdmin  = "admin.system"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollWrite,
	PermAuditRead,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {},
	RoleManager: {
		PermPayrollRead,
	},
	RoleHR: {
		PermPayrollRead,
		PermPayrollWrite,
		PermAuditRead,
	},
	RoleAccountant: {
		PermPayrollRead,
		PermPayrollWrite,
	},
	RoleSystemAdmin: {
		PermPayrollRead,
		PermPayrollWrite,
		PermAuditRead,
		PermSystemAdmin,
	},
}

// UserContext is the authenticated caller as carried on the request context.
type UserContext struct {
	UserID   string
	TenantID string
	RoleID   string
	RoleName string
}

// StaticPermissions resolves permissions from RolePermissions. Role ids issued
// by the identity provider are role names.
type StaticPermissions struct {
	roles map[string]map[string]struct{}
}

func NewStaticPermissions(roles map[string][]string) *StaticPermissions {
	out := &StaticPermissions{roles: make(map[string]map[string]struct{}, len(roles))}
	for role, perms := range roles {
		set := make(map[string]struct{}, len(perms))
		for _, perm := range perms {
			set[perm] = struct{}{}
		}
		out.roles[strings.ToLower(role)] = set
	}
	return out
}

func (s *StaticPermissions) HasPermission(_ context.Context, roleID, permission string) (bool, error) {
	perms, ok := s.roles[strings.ToLower(strings.TrimSpace(roleID))]
	if !ok {
		return false, nil
	}
	_, allowed := perms[permission]
	return allowed, nil
}
