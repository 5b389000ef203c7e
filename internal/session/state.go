package session

import "wagate/internal/domain"

// State is the session lifecycle state.
type State int

const (
	Unauthenticated State = iota
	QrPending
	Authenticated
	Ready
	Disconnected
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case QrPending:
		return "qr_pending"
	case Authenticated:
		return "authenticated"
	case Ready:
		return "ready"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// triggerInit is the controller-owned trigger that (re)starts the client.
const triggerInit domain.EventType = "init"

// transition is the lifecycle table. ok is false when trigger is not a
// transition from the given state; the event is then ignored.
func transition(from State, trigger domain.EventType) (to State, ok bool) {
	switch trigger {
	case triggerInit:
		return Unauthenticated, true
	case domain.EventQR:
		// A fresh challenge replaces an expired one while still pending.
		if from == Unauthenticated || from == QrPending {
			return QrPending, true
		}
	case domain.EventAuthenticated:
		if from == Unauthenticated || from == QrPending {
			return Authenticated, true
		}
	case domain.EventReady:
		// Restored sessions may skip the authenticated event.
		if from == Unauthenticated || from == QrPending || from == Authenticated {
			return Ready, true
		}
	case domain.EventDisconnected:
		return Disconnected, true
	}
	return from, false
}
