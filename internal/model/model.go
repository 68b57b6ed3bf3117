package model

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	// ApexName is the short name meaning the zone domain itself.
	ApexName = "@"

	// AutoTTL is the provider's "automatic" TTL.
	AutoTTL = 1
	MaxTTL  = 86400
)

var RecordTypes = []string{"A", "AAAA", "CNAME"}

func ValidRecordType(t string) bool {
	for _, rt := range RecordTypes {
		if rt == t {
			return true
		}
	}
	return false
}

type Account struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	PassHash       string    `json:"-"`
	Plan           string    `json:"plan"`
	Role           string    `json:"role"`
	RecordCount    int       `json:"record_count"`
	RecordLimit    int       `json:"record_limit"`
	ReferralCode   string    `json:"referral_code"`
	ReferredBy     string    `json:"referred_by,omitempty"`
	ReferralCount  int       `json:"referral_count"`
	ReferralBonus  int       `json:"referral_bonus"`
	AuthSource     string    `json:"auth_source"` // "local" or "ldap"
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

type Record struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"cf_record_id"`
	OwnerID    string    `json:"user_id"`
	Name       string    `json:"name"`
	FullName   string    `json:"full_name"`
	Type       string    `json:"record_type"`
	Content    string    `json:"content"`
	TTL        int       `json:"ttl"`
	Proxied    bool      `json:"proxied"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordPatch carries the optional fields of a partial record update.
type RecordPatch struct {
	Content *string `json:"content"`
	TTL     *int    `json:"ttl"`
	Proxied *bool   `json:"proxied"`
}

type Plan struct {
	ID          string   `json:"plan_id"`
	Name        string   `json:"name"`
	Price       string   `json:"price"`
	RecordLimit int      `json:"record_limit"`
	Features    []string `json:"features"`
	Popular     bool     `json:"popular"`
	SortOrder   int      `json:"sort_order"`
}

type Settings struct {
	TelegramID       string `json:"telegram_id"`
	TelegramURL      string `json:"telegram_url"`
	ContactMessageEN string `json:"contact_message_en"`
	ContactMessageFA string `json:"contact_message_fa"`
	ReferralBonus    int    `json:"referral_bonus_per_invite"`
	FreeRecordLimit  int    `json:"free_record_limit"`
}

func DefaultSettings() Settings {
	return Settings{
		ReferralBonus:   1,
		FreeRecordLimit: 2,
	}
}

type Activity struct {
	ID         int64     `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorEmail string    `json:"actor_email"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
}

// CountDrift describes an account whose cached record_count disagrees
// with the number of records it owns.
type CountDrift struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Stored    int    `json:"stored"`
	Actual    int    `json:"actual"`
}
