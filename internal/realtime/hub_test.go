package realtime

import (
	"context"
	"testing"
)

// testClient builds a registered client without a socket; publish only
// touches the send channel, so the write loops are not needed here.
func testClient(h *Hub, userID, role string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		UserID: userID,
		Role:   role,
		send:   make(chan Event, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	h.register(c)
	return c
}

func drain(c *Client) []Event {
	var events []Event
	for {
		select {
		case ev := <-c.send:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestDoubtCreatedReachesOnlyAssignedTeacher(t *testing.T) {
	h := NewHub()
	teacher := testClient(h, "usr_teacher", "teacher")
	otherTeacher := testClient(h, "usr_other", "teacher")
	student := testClient(h, "usr_student", "student")

	h.DoubtCreated(map[string]any{"id": "dbt_1"}, "usr_teacher")

	events := drain(teacher)
	if len(events) != 1 || events[0].Name != "newDoubt" {
		t.Fatalf("teacher events = %v, want one newDoubt", events)
	}
	if got := drain(otherTeacher); len(got) != 0 {
		t.Errorf("unassigned teacher received %v", got)
	}
	if got := drain(student); len(got) != 0 {
		t.Errorf("student received %v", got)
	}
}

func TestReplyAddedFansOutToAllConnectionsOfParticipants(t *testing.T) {
	h := NewHub()
	studentTab1 := testClient(h, "usr_student", "student")
	studentTab2 := testClient(h, "usr_student", "student")
	teacher := testClient(h, "usr_teacher", "teacher")
	bystander := testClient(h, "usr_bystander", "student")

	h.ReplyAdded("dbt_1", map[string]any{"id": "rpl_1"}, "usr_student", "usr_teacher")

	for _, c := range []*Client{studentTab1, studentTab2, teacher} {
		events := drain(c)
		if len(events) != 1 {
			t.Fatalf("client %s got %d events, want 1", c.UserID, len(events))
		}
		if events[0].Name != "doubt:dbt_1" {
			t.Errorf("event name = %q, want doubt:dbt_1", events[0].Name)
		}
	}
	if got := drain(bystander); len(got) != 0 {
		t.Errorf("bystander received %v", got)
	}
}

func TestStatusChangedEventName(t *testing.T) {
	h := NewHub()
	student := testClient(h, "usr_student", "student")

	h.StatusChanged("dbt_9", "accepted", "usr_student")

	events := drain(student)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Name != "doubt:dbt_9:status" {
		t.Errorf("event name = %q, want doubt:dbt_9:status", events[0].Name)
	}
	payload := events[0].Payload.(map[string]any)
	if payload["status"] != "accepted" {
		t.Errorf("payload = %v, want status accepted", payload)
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	h := NewHub()
	c := testClient(h, "usr_student", "student")
	h.unregister(c)

	h.StatusChanged("dbt_1", "accepted", "usr_student")

	if got := drain(c); len(got) != 0 {
		t.Errorf("unregistered client received %v", got)
	}
}

func TestSlowConsumerDropsEventsWithoutBlocking(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &Client{
		UserID: "usr_student",
		send:   make(chan Event, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	h.register(c)

	// Second publish must not block even though nobody reads.
	h.StatusChanged("dbt_1", "accepted", "usr_student")
	h.StatusChanged("dbt_1", "resolved", "usr_student")

	events := drain(c)
	if len(events) != 1 {
		t.Fatalf("buffered events = %d, want 1 (second dropped)", len(events))
	}
}
