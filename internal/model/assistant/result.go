package assistant

// Result is the outcome of one completed exchange.
type Result struct {
	// DisplayText is only meaningful when HasDisplayText is true.
	DisplayText    string `json:"displayText,omitempty"`
	HasDisplayText bool   `json:"hasDisplayText"`
	// ConversationState is a copy of the continuation token after the exchange.
	ConversationState []byte `json:"-"`
	Responses         int    `json:"responses"`
}
