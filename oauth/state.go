package oauth

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateValid
	StateExpiring
	StateRefreshing
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateValid:
		return "valid"
	case StateExpiring:
		return "expiring"
	case StateRefreshing:
		return "refreshing"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}
