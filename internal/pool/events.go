package pool

// Event names delivered over the conversation channel. Within one
// conversation, events go out in the order the originating mutation
// committed.
const (
	EventConversationCreated = "conversation:created"
	EventMessageCreated      = "message:created"
	EventMessageEdited       = "message:edited"
	EventMessageDeleted      = "message:deleted"
	EventReactionUpdated     = "reaction:updated"
	EventReadReceipt         = "conversation:read-receipt"
	EventMemberAdded         = "member:added"
	EventMemberRemoved       = "member:removed"
	EventPinAdded            = "pin:added"
	EventPinRemoved          = "pin:removed"
)

// Envelope is the wire shape of every pushed event.
type Envelope struct {
	Event          string      `json:"event"`
	ConversationID int64       `json:"conversation_id"`
	Data           interface{} `json:"data"`
}
