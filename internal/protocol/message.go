package protocol

// UserMessage is a Bridge -> Controller chat envelope.
type UserMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	TabID int    `json:"tabId,omitempty"`
	CID   string `json:"cid,omitempty"`
}

// inboundActionTable maps UserMessage.Type to the internal action name the
// Workflow Dispatcher routes on. Unknown types are not in this table; the
// caller is expected to echo them back to the Bridge as supervisor_log.
var inboundActionTable = map[string]string{
	"chat":             "user_input_normal",
	"user_input":       "user_input_normal",
	"input":            "user_input_normal",
	"prompt":           "user_input_normal",
	"pending_response": "user_input_pending",
	"reset":            "reset",
}

// InternalAction resolves a Bridge message type to its dispatch action name.
// The bool result is false for types with no known mapping.
func InternalAction(msgType string) (string, bool) {
	action, ok := inboundActionTable[msgType]
	return action, ok
}

// Recognized OutboundBridgeMessage.Type values.
const (
	OutboundMainInput     = "main_input"
	OutboundPendingReq    = "pending_request"
	OutboundInfo          = "info"
	OutboundSummary       = "summary"
	OutboundDiff          = "diff"
	OutboundResult        = "result"
	OutboundError         = "error"
	OutboundSupervisorLog = "supervisor_log"
	OutboundSystem        = "system"
)

// OutboundBridgeMessage is a Controller -> Bridge envelope.
type OutboundBridgeMessage struct {
	Type  string `json:"type"`
	Text  any    `json:"text"`
	TabID int    `json:"tabId,omitempty"`
}
