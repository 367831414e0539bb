package rbac

type Role string
type Action string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

const (
	ActionAsk       Action = "ask"       // create doubts, browse teachers
	ActionTriage    Action = "triage"    // accept/reject doubts, browse students
	ActionReply     Action = "reply"     // post to a doubt's thread
	ActionDashboard Action = "dashboard" // view own dashboard
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleStudent:
		return action == ActionAsk || action == ActionReply || action == ActionDashboard
	case RoleTeacher:
		return action == ActionTriage || action == ActionReply || action == ActionDashboard
	default:
		return false
	}
}

func Valid(role string) bool {
	switch Role(role) {
	case RoleStudent, RoleTeacher:
		return true
	default:
		return false
	}
}
