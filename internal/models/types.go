package models

import (
	"sort"
	"time"
)

// ChatType distinguishes direct conversations from group chats
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// InboundMessage is a transport-neutral view of a received text message
type InboundMessage struct {
	ChatID          int64
	ChatType        ChatType
	MessageID       int
	SenderID        int64
	SenderUsername  string
	SenderName      string
	Text            string
	ReplyToSenderID int64
	ReplyToIsBot    bool
	ReceivedAt      time.Time
}

// OutboundReply is a message the orchestrator asks the transport to deliver
type OutboundReply struct {
	ChatID           int64
	Text             string
	ReplyToMessageID int
}

// BotIdentity identifies the bot account on the transport
type BotIdentity struct {
	ID       int64
	Username string
}

// EligibilityReason records why a message was accepted by the gate
type EligibilityReason string

const (
	EligibleNone    EligibilityReason = ""
	EligibleCommand EligibilityReason = "command"
	EligiblePrivate EligibilityReason = "private"
	EligibleMention EligibilityReason = "mention"
	EligibleReply   EligibilityReason = "reply"
)

// Attitude is the detected tone of a user's latest message
type Attitude string

const (
	AttitudeNeutral  Attitude = "neutral"
	AttitudePositive Attitude = "positive"
	AttitudeNegative Attitude = "negative"
	AttitudeHostile  Attitude = "hostile"
)

// IntentKind is the symbolic special-handling class of a message
type IntentKind string

const (
	IntentNone      IntentKind = "none"
	IntentSensitive IntentKind = "sensitive"
	IntentMath      IntentKind = "math"
	IntentTime      IntentKind = "time"
	IntentWiki      IntentKind = "wiki"
	IntentBusiness  IntentKind = "business"
	IntentScrape    IntentKind = "scrape"
)

// Intent is a classifier result plus whatever the aggregator resolved for it.
// Query holds the cleaned search term, company name, URL or math expression.
// Facet narrows a business lookup to phone, address, contact or info.
// Payload is only meaningful when Resolved is true.
type Intent struct {
	Kind     IntentKind
	Query    string
	Facet    string
	Title    string
	Payload  string
	Resolved bool
	Failed   bool
}

// HistoryTurn is one message of a user's conversation, with the bot reply once delivered
type HistoryTurn struct {
	Text  string    `json:"text"`
	Reply string    `json:"reply,omitempty"`
	At    time.Time `json:"at"`
}

// AdminRecord maps an identity fragment to an honorific
type AdminRecord struct {
	Name       string   `mapstructure:"name" json:"name"`
	Title      string   `mapstructure:"title" json:"title"`
	Variations []string `mapstructure:"variations" json:"variations"`
}

// AdminStatus is the resolved admin state of a sender
type AdminStatus struct {
	IsAdmin   bool
	Name      string
	Title     string
	ChatAdmin bool
}

// UserProfile is what the bot remembers about a user between turns
type UserProfile struct {
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Interests    []string  `json:"interests"`
	Attitude     Attitude  `json:"attitude"`
	IsAdmin      bool      `json:"is_admin"`
	AdminTitle   string    `json:"admin_title,omitempty"`
	MessageCount int       `json:"message_count"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// HasInterest reports whether tag is part of the profile's interests
func (p *UserProfile) HasInterest(tag string) bool {
	i := sort.SearchStrings(p.Interests, tag)
	return i < len(p.Interests) && p.Interests[i] == tag
}

// AddInterests unions tags into the interest set, keeping it sorted.
// Returns the number of tags that were not present before.
func (p *UserProfile) AddInterests(tags ...string) int {
	added := 0
	for _, tag := range tags {
		if tag == "" || p.HasInterest(tag) {
			continue
		}
		i := sort.SearchStrings(p.Interests, tag)
		p.Interests = append(p.Interests, "")
		copy(p.Interests[i+1:], p.Interests[i:])
		p.Interests[i] = tag
		added++
	}
	return added
}

// IsNew reports whether this is the user's first turn
func (p *UserProfile) IsNew() bool {
	return p.MessageCount <= 1
}

// ResponseContext is built fresh for every eligible message and consumed once
type ResponseContext struct {
	Message     InboundMessage
	CleanText   string
	ChatType    ChatType
	Intent      Intent
	Profile     UserProfile
	History     []HistoryTurn
	Sensitive   bool
	Eligibility EligibilityReason
	Complex     bool
}

// GenerationRequest is the single call payload sent to the generation provider
type GenerationRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float32
	Stop        []string
}

// Interaction is the record of one handled message
type Interaction struct {
	ID        string
	ChatID    int64
	UserID    int64
	Username  string
	Text      string
	Reply     string
	Intent    IntentKind
	Persona   string
	State     string
	Latency   time.Duration
	CreatedAt time.Time
}

// UserStats represents per-user counters
type UserStats struct {
	UserID        int64     `json:"user_id"`
	TotalMessages int       `json:"total_messages"`
	TotalReplies  int       `json:"total_replies"`
	LastActive    time.Time `json:"last_active"`
}

// CacheEntry represents a cached lookup result
type CacheEntry struct {
	Kind      IntentKind
	Query     string
	Title     string
	Value     string
	CreatedAt time.Time
}
