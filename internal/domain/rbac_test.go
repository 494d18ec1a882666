package domain

import "testing"

func TestEveryRoleHasPermissions(t *testing.T) {
	for _, role := range Roles {
		perms := PermissionsFor(role)
		if len(perms) == 0 {
			t.Errorf("role %s has an empty permission set", role)
		}
	}
}

func TestSuperAdminIsSuperset(t *testing.T) {
	super := make(map[Permission]bool)
	for _, p := range PermissionsFor(RoleSuperAdmin) {
		super[p] = true
	}
	for _, role := range Roles {
		for _, p := range PermissionsFor(role) {
			if !super[p] {
				t.Errorf("super_admin is missing %s granted to %s", p, role)
			}
		}
	}
}

func TestPermissionsForReturnsCopy(t *testing.T) {
	perms := PermissionsFor(RoleViewer)
	perms[0] = Permission("tampered")
	if PermissionsFor(RoleViewer)[0] == Permission("tampered") {
		t.Fatal("PermissionsFor leaked internal state")
	}
}

func TestUnknownRole(t *testing.T) {
	if perms := PermissionsFor(Role("ghost")); perms != nil {
		t.Fatalf("expected nil permissions for unknown role, got %v", perms)
	}
	if ValidRole(Role("ghost")) {
		t.Fatal("ghost should not be a valid role")
	}
	if !ValidRole(RoleEngineer) {
		t.Fatal("engineer should be a valid role")
	}
}

func TestRoleHasPermission(t *testing.T) {
	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermProjectRead, true},
		{RoleViewer, PermUserManage, false},
		{RoleAdmin, PermUserCreate, true},
		{RoleAdmin, PermSystemAdmin, false},
		{RoleSuperAdmin, PermSystemAdmin, true},
		{RoleClient, PermAIChat, true},
		{RoleClient, PermFileUpload, false},
	}
	for _, tc := range cases {
		if got := RoleHasPermission(tc.role, tc.perm); got != tc.want {
			t.Errorf("RoleHasPermission(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}
