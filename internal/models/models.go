package models

import (
	"time"
)

// SettingsKeyPrefix prefixes the per-project key of ChannelSettings.
const SettingsKeyPrefix = "whatsapp-"

// SettingsKey returns the store key holding the settings of a project.
func SettingsKey(projectID string) string {
	return SettingsKeyPrefix + projectID
}

// ChannelSettings is the per-project configuration of the WhatsApp channel.
// It is created by the configuration flow and only read by the bridge.
type ChannelSettings struct {
	ProjectID         string `json:"project_id" bson:"project_id"`
	Token             string `json:"token,omitempty" bson:"token,omitempty"`
	ProxyURL          string `json:"proxy_url,omitempty" bson:"proxy_url,omitempty"`
	WabToken          string `json:"wab_token" bson:"wab_token"`
	VerifyToken       string `json:"verify_token" bson:"verify_token"`
	BusinessAccountID string `json:"business_account_id" bson:"business_account_id"`
	DepartmentID      string `json:"department_id,omitempty" bson:"department_id,omitempty"`
	SubscriptionID    string `json:"subscriptionId,omitempty" bson:"subscriptionId,omitempty"`
	Secret            string `json:"secret,omitempty" bson:"secret,omitempty"`
	Expired           bool   `json:"expired,omitempty" bson:"expired,omitempty"`
}

// TestSessionKeyPrefix prefixes the Redis key of a TestSession.
const TestSessionKeyPrefix = "bottest:"

// TestSessionTTL is the lifetime of a bot test session.
const TestSessionTTL = 7 * 24 * time.Hour

// TestSession correlates a short code typed on WhatsApp with the bot to test.
type TestSession struct {
	ShortID   string    `json:"-"`
	ProjectID string    `json:"project_id"`
	BotID     string    `json:"bot_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MediaReference tracks one inbound media object while it is relayed.
type MediaReference struct {
	RemoteID  string
	LocalPath string
	MimeType  string
	FileName  string
	HostedURL string
}

// Command types understood by the sequencer.
const (
	CommandMessage = "message"
	CommandWait    = "wait"
)
