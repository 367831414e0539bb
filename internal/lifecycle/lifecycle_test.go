package lifecycle

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusResolved, false},
		{StatusPending, StatusPending, false},
		{StatusAccepted, StatusAccepted, false},
		{StatusAccepted, StatusRejected, false},
		{StatusAccepted, StatusResolved, false},
		{StatusRejected, StatusAccepted, false},
		{StatusRejected, StatusPending, false},
		{StatusResolved, StatusAccepted, false},
		{StatusResolved, StatusResolved, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestOnTeacherReply(t *testing.T) {
	cases := []struct {
		current     Status
		want        Status
		wantChanged bool
	}{
		{StatusAccepted, StatusResolved, true},
		{StatusPending, StatusPending, false},
		{StatusResolved, StatusResolved, false},
		{StatusRejected, StatusRejected, false},
	}
	for _, tc := range cases {
		got, changed := OnTeacherReply(tc.current)
		if got != tc.want || changed != tc.wantChanged {
			t.Errorf("OnTeacherReply(%s) = (%s, %v), want (%s, %v)",
				tc.current, got, changed, tc.want, tc.wantChanged)
		}
	}
}

func TestTerminal(t *testing.T) {
	if Terminal(StatusPending) || Terminal(StatusAccepted) {
		t.Error("pending and accepted must not be terminal")
	}
	if !Terminal(StatusRejected) || !Terminal(StatusResolved) {
		t.Error("rejected and resolved must be terminal")
	}
}

func TestAcceptsReplies(t *testing.T) {
	if AcceptsReplies(StatusRejected) {
		t.Error("rejected doubts must not accept replies")
	}
	for _, s := range []Status{StatusPending, StatusAccepted, StatusResolved} {
		if !AcceptsReplies(s) {
			t.Errorf("%s doubts must accept replies", s)
		}
	}
}

func TestValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusAccepted, StatusRejected, StatusResolved} {
		if !Valid(s) {
			t.Errorf("Valid(%s) = false", s)
		}
	}
	if Valid(Status("archived")) || Valid(Status("")) {
		t.Error("unknown status values must not be valid")
	}
}
