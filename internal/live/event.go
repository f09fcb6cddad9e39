package live

import "encoding/json"

type Op string

const (
	OpAdded    Op = "added"
	OpModified Op = "modified"
	OpRemoved  Op = "removed"
	// OpResync tells subscribers that changes may have been missed and the
	// result set must be loaded again.
	OpResync Op = "resync"
)

const (
	CollectionMessages = "messages"
	CollectionFoodLogs = "food_logs"
)

// Event is one change pushed by a store's change feed. Key is the client
// email that owns the document; it is empty when the feed could not tell,
// in which case the event goes to every subscriber of the collection.
type Event struct {
	Collection string `json:"collection"`
	Op         Op     `json:"op"`
	Key        string `json:"key"`
	DocID      string `json:"id"`
	Doc        any    `json:"-"`
}

// Notification is the payload written by the Postgres change triggers.
type Notification struct {
	Collection string `json:"collection"`
	Op         string `json:"op"`
	Key        string `json:"key"`
	ID         string `json:"id"`
}

// Resync is the keyless event a change feed publishes after it reconnects.
func Resync(collection string) Event {
	return Event{Collection: collection, Op: OpResync}
}

func ParseNotification(payload string) (Notification, error) {
	var n Notification
	err := json.Unmarshal([]byte(payload), &n)
	return n, err
}

// OpFromTrigger maps a trigger TG_OP value to an Op.
func OpFromTrigger(op string) Op {
	switch op {
	case "INSERT":
		return OpAdded
	case "DELETE":
		return OpRemoved
	default:
		return OpModified
	}
}
