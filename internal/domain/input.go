package domain

import "time"

// InputSource identifies the channel an input arrived on.
type InputSource string

const (
	SourceNetwork  InputSource = "NETWORK"
	SourceDiscord  InputSource = "DISCORD"
	SourceTwitter  InputSource = "TWITTER"
	SourceTelegram InputSource = "TELEGRAM"
	SourceSlack    InputSource = "SLACK"
	SourceCLI      InputSource = "CLI"
)

// InputType classifies the payload of an input.
type InputType string

const (
	TypeText  InputType = "TEXT"
	TypeImage InputType = "IMAGE"
)

// InputObject is one inbound message occurrence.
type InputObject struct {
	Source     InputSource `json:"source"`
	UserID     string      `json:"userId"`
	AgentID    string      `json:"agentId"`
	RoomID     string      `json:"roomId"`
	Type       InputType   `json:"type"`
	Text       string      `json:"text"`
	ImageURLs  []string    `json:"imageUrls,omitempty"`
	ReceivedAt time.Time   `json:"receivedAt,omitempty"`
}

// RoomID derives the conversation scope for a platform user on a channel.
// The result depends only on its arguments so memory lookups stay stable across turns.
func RoomID(prefix, platformID string) string {
	return prefix + "_" + platformID
}

// NetworkRoomID is the default room for API inputs that omit one.
func NetworkRoomID(agentID, userID string) string {
	return agentID + "_" + userID
}
