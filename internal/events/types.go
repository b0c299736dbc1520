package events

// Event types published by the connector.
const (
	// Message flow
	EventInboundMessage  = "InboundMessage"  // WhatsApp message forwarded to Tiledesk
	EventOutboundMessage = "OutboundMessage" // Tiledesk message sent to WhatsApp
	EventOutboundFailed  = "OutboundFailed"
	EventExpiredNotice   = "ExpiredNotice"

	// Media
	EventMediaRelayed = "MediaRelayed"
	EventMediaFailed  = "MediaFailed"

	// Command sequences
	EventSequenceFinished = "SequenceFinished"

	// Bot testing
	EventTestSessionCreated = "TestSessionCreated"
	EventTestSessionStarted = "TestSessionStarted"
)

// List of supported event types
var supportedEventTypes = []string{
	EventInboundMessage,
	EventOutboundMessage,
	EventOutboundFailed,
	EventExpiredNotice,
	EventMediaRelayed,
	EventMediaFailed,
	EventSequenceFinished,
	EventTestSessionCreated,
	EventTestSessionStarted,
}

// Map for quick validation
var eventTypeMap map[string]bool

func init() {
	eventTypeMap = make(map[string]bool)
	for _, eventType := range supportedEventTypes {
		eventTypeMap[eventType] = true
	}
}

// IsValidEventType reports whether eventType is published by the connector.
func IsValidEventType(eventType string) bool {
	return eventTypeMap[eventType]
}
