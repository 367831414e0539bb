package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleStudent, ActionAsk, true},
		{RoleStudent, ActionReply, true},
		{RoleStudent, ActionDashboard, true},
		{RoleStudent, ActionTriage, false},
		{RoleTeacher, ActionTriage, true},
		{RoleTeacher, ActionReply, true},
		{RoleTeacher, ActionDashboard, true},
		{RoleTeacher, ActionAsk, false},
		{Role("admin"), ActionAsk, false},
		{Role(""), ActionReply, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestValid(t *testing.T) {
	if !Valid("student") || !Valid("teacher") {
		t.Error("student and teacher must be valid roles")
	}
	if Valid("admin") || Valid("") {
		t.Error("unknown roles must not be valid")
	}
}
