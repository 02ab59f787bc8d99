package socket

import "studydeck/store"

const (
	OpRead               = "read"
	OpWrite              = "write"
	OpUpdate             = "update"
	OpAppend             = "append"
	OpRemove             = "remove"
	OpCompareAndSet      = "cas"
	OpOnDisconnectRemove = "on_disconnect_remove"
	OpCancelOnDisconnect = "cancel_on_disconnect"
	OpSubscribe          = "subscribe"
	OpUnsubscribe        = "unsubscribe"
	OpSync               = "sync"

	ResultType = "result" // reply to a Request
	EventType  = "event"  // subscription event

	RoleAdmin   = "admin"
	RoleVisitor = "visitor"
)

// Request is one store operation sent by a client. Sub is chosen by the
// client on subscribe so events can arrive before the reply.
type Request struct {
	ID       string          `json:"id"`
	Op       string          `json:"op"`
	Path     string          `json:"path,omitempty"`
	Value    any             `json:"value,omitempty"`
	Values   map[string]any  `json:"values,omitempty"`
	Expected any             `json:"expected,omitempty"`
	Kind     store.EventKind `json:"kind,omitempty"`
	OrderBy  string          `json:"orderBy,omitempty"`
	Sub      string          `json:"sub,omitempty"`
}

// WSMessage is everything the server sends: results and events.
type WSMessage struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	OK      bool         `json:"ok,omitempty"`
	Error   string       `json:"error,omitempty"`
	Key     string       `json:"key,omitempty"`
	Value   any          `json:"value,omitempty"`
	Swapped bool         `json:"swapped,omitempty"`
	Sub     string       `json:"sub,omitempty"`
	Event   *store.Event `json:"event,omitempty"`
}

// mutates reports whether op changes data.
func mutates(op string) bool {
	switch op {
	case OpWrite, OpUpdate, OpAppend, OpRemove, OpCompareAndSet, OpOnDisconnectRemove, OpCancelOnDisconnect:
		return true
	}
	return false
}

// visitorWritable is the only place visitors may write:
// tabs/{tabId}/content/{itemId}/userAnswer.
func visitorWritable(path string) bool {
	parts, err := store.SplitPath(path)
	if err != nil {
		return false
	}
	return len(parts) == 5 && parts[0] == "tabs" && parts[2] == "content" && parts[4] == "userAnswer"
}

// Allowed applies role based access to a request.
func Allowed(role string, req Request) bool {
	if role == RoleAdmin || !mutates(req.Op) {
		return true
	}
	if req.Op != OpUpdate {
		return visitorWritable(req.Path)
	}
	if len(req.Values) == 0 {
		return false
	}
	for sub := range req.Values {
		if !visitorWritable(store.JoinPath(req.Path, sub)) {
			return false
		}
	}
	return true
}
