package auth

import "testing"

func TestRoleRank_Ordering(t *testing.T) {
	if !(RoleOwner.Rank() > RoleAdmin.Rank() && RoleAdmin.Rank() > RoleMember.Rank()) {
		t.Error("role ranks out of order")
	}
	if Role("garbage").Rank() >= RoleMember.Rank() {
		t.Error("unknown role must rank below member")
	}
}

func TestAtLeast(t *testing.T) {
	tests := []struct {
		role     Role
		required Role
		want     bool
	}{
		{RoleOwner, RoleMember, true},
		{RoleOwner, RoleOwner, true},
		{RoleAdmin, RoleMember, true},
		{RoleAdmin, RoleOwner, false},
		{RoleMember, RoleAdmin, false},
		{Role(""), RoleMember, false},
	}

	for _, tt := range tests {
		if got := tt.role.AtLeast(tt.required); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.role, tt.required, got, tt.want)
		}
	}
}

func TestCanManage(t *testing.T) {
	if !RoleAdmin.CanManageMembers() || !RoleOwner.CanManageMembers() {
		t.Error("admin and owner should manage members")
	}
	if RoleMember.CanManageMembers() {
		t.Error("member should not manage members")
	}
	if !RoleOwner.CanManageOrganization() {
		t.Error("owner should manage the organization")
	}
	if RoleAdmin.CanManageOrganization() {
		t.Error("admin should not manage the organization")
	}
}

func TestCanAssign(t *testing.T) {
	tests := []struct {
		actor  Role
		target Role
		want   bool
	}{
		{RoleOwner, RoleOwner, true},
		{RoleOwner, RoleAdmin, true},
		{RoleOwner, RoleMember, true},
		{RoleAdmin, RoleMember, true},
		{RoleAdmin, RoleAdmin, false},
		{RoleAdmin, RoleOwner, false},
		{RoleMember, RoleMember, false},
		{RoleOwner, Role("garbage"), false},
	}

	for _, tt := range tests {
		if got := tt.actor.CanAssign(tt.target); got != tt.want {
			t.Errorf("%s.CanAssign(%s) = %v, want %v", tt.actor, tt.target, got, tt.want)
		}
	}
}
