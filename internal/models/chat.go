package models

import "time"

// DeletedMessageText replaces the text of a soft-deleted message.
const DeletedMessageText = "This message was deleted"

// TeamInbox is the coach side of a counter for clients without an assigned coach.
const TeamInbox = "team"

type Message struct {
	ID          string    `json:"id" bson:"_id"`
	ClientEmail string    `json:"client_email" bson:"client_email"`
	SenderEmail string    `json:"sender_email" bson:"sender_email"`
	Text        string    `json:"text" bson:"text"`
	IsDeleted   bool      `json:"is_deleted" bson:"is_deleted"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

func (m Message) DocID() string {
	return m.ID
}

// UnreadCounter holds both directions of unread state for one client/coach pair.
type UnreadCounter struct {
	ClientEmail string    `json:"client_email" bson:"client_email"`
	CoachEmail  string    `json:"coach_email" bson:"coach_email"`
	ForClient   int       `json:"for_client" bson:"for_client"`
	ForCoach    int       `json:"for_coach" bson:"for_coach"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

type ClientSummary struct {
	Email              string `json:"email"`
	DisplayName        string `json:"display_name"`
	CoachEmail         string `json:"coach_email,omitempty"`
	CurrentPhase       int    `json:"current_phase"`
	PhaseTitle         string `json:"phase_title"`
	CelebratePromotion bool   `json:"celebrate_promotion"`
	UnreadCount        int    `json:"unread_count"`
	HasUnreadMsg       bool   `json:"has_unread_msg"`
}

type UnreadSide string

const (
	UnreadForClient UnreadSide = "client"
	UnreadForCoach  UnreadSide = "coach"
)
