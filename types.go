package campusfind

import "encoding/json"

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an error response from the backend.
// FastAPI-style {"detail": "..."} bodies decode into Detail.
type APIError struct {
	Status int    `json:"-"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return "api error"
}

// User is a platform account.
type User struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	FullName        string `json:"full_name"`
	StudentID       string `json:"student_id,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Role            string `json:"role,omitempty"`
	ReputationScore int    `json:"reputation_score,omitempty"`
	IsActive        bool   `json:"is_active,omitempty"`
	Avatar          string `json:"avatar,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// DisplayName returns the user's preferred on-screen name.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

// ============================================================================
// Messaging Types
// ============================================================================

// Message is a single chat line, canonical across the REST and socket paths.
//
// The socket path names the counterpart recipient_id while the REST path
// names it receiver_id; UnmarshalJSON normalizes both into RecipientID.
type Message struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
	IsRead      bool   `json:"is_read"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string `json:"id"`
		SenderID    string `json:"sender_id"`
		RecipientID string `json:"recipient_id"`
		ReceiverID  string `json:"receiver_id"`
		Content     string `json:"content"`
		CreatedAt   string `json:"created_at"`
		IsRead      bool   `json:"is_read"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.ID = raw.ID
	m.SenderID = raw.SenderID
	m.RecipientID = raw.RecipientID
	if m.RecipientID == "" {
		m.RecipientID = raw.ReceiverID
	}
	m.Content = raw.Content
	m.CreatedAt = raw.CreatedAt
	m.IsRead = raw.IsRead
	return nil
}

// Conversation pairs a peer with the latest-message summary the backend
// computes for the conversation list.
type Conversation struct {
	User          User   `json:"user"`
	LastMessage   string `json:"last_message"`
	LastMessageAt string `json:"last_message_at"`
	UnreadCount   int    `json:"unread_count"`
}

// ============================================================================
// Auth Types
// ============================================================================

// LoginResult is returned by login and register.
type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	User         User   `json:"user"`
}

// RegisterOptions holds the fields for account registration.
type RegisterOptions struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	StudentID string `json:"student_id,omitempty"`
}

// UpdateProfileOptions holds the mutable profile fields.
type UpdateProfileOptions struct {
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// ============================================================================
// Item & Claim Types
// ============================================================================

// Item is a lost or found report.
type Item struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"` // "lost" or "found"
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Location      string   `json:"location"`
	LocationFound string   `json:"location_found,omitempty"`
	DateLostFound string   `json:"date_lost_found"`
	Status        string   `json:"status"` // active, claimed, returned, closed
	Tags          []string `json:"tags,omitempty"`
	Images        []string `json:"images,omitempty"`
	UserID        string   `json:"user_id"`
	User          *User    `json:"user,omitempty"`
	CreatedAt     string   `json:"created_at,omitempty"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
}

// ItemsPage is one page of the paginated item listing.
type ItemsPage struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
	Skip  int    `json:"skip"`
	Limit int    `json:"limit"`
}

// ItemFilters narrows an item listing.
type ItemFilters struct {
	Type     string
	Category string
	Status   string
	Location string
	Search   string
	Skip     int
	Limit    int
}

// CreateItemOptions holds the fields for reporting a lost or found item.
type CreateItemOptions struct {
	Type          string   `json:"type"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Location      string   `json:"location"`
	DateLostFound string   `json:"date_lost_found"`
	Tags          []string `json:"tags,omitempty"`
}

// Match pairs a lost report with a similar found report, scored by the
// backend's matcher.
type Match struct {
	ID                 string   `json:"id"`
	LostItemID         string   `json:"lost_item_id"`
	FoundItemID        string   `json:"found_item_id"`
	SimilarityScore    float64  `json:"similarity_score"`
	MatchingAttributes []string `json:"matching_attributes,omitempty"`
	LostItem           *Item    `json:"lost_item,omitempty"`
	FoundItem          *Item    `json:"found_item,omitempty"`
	CreatedAt          string   `json:"created_at,omitempty"`
}

// UserNotification is a persisted server-side notification, distinct from
// the transient Notification the messaging session raises.
type UserNotification struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"` // match_found, claim_update, message, item_claimed
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	IsRead    bool              `json:"is_read"`
	CreatedAt string            `json:"created_at"`
}

// NotificationFilters narrows a notification listing.
type NotificationFilters struct {
	IsRead *bool
	Limit  int
}

// Claim is a user's assertion of ownership over a found item.
type Claim struct {
	ID                  string            `json:"id"`
	ItemID              string            `json:"item_id"`
	ClaimerID           string            `json:"claimer_id"`
	Description         string            `json:"description,omitempty"`
	VerificationDetails map[string]string `json:"verification_details,omitempty"`
	Status              string            `json:"status"` // pending, approved, rejected, completed
	Item                *Item             `json:"item,omitempty"`
	Claimer             *User             `json:"claimer,omitempty"`
	CreatedAt           string            `json:"created_at,omitempty"`
}

// CreateClaimOptions holds the fields for filing a claim.
type CreateClaimOptions struct {
	ItemID              string         `json:"item_id"`
	VerificationAnswers map[string]any `json:"verification_answers"`
}
