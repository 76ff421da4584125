// Package contract holds the Firestore document shapes shared by the
// engine and its store adapters.
package contract

import "time"

type Message struct {
	ID         string    `firestore:"id"`
	SenderID   string    `firestore:"senderId"`
	SenderName string    `firestore:"senderName"`
	Content    string    `firestore:"content"`
	Timestamp  time.Time `firestore:"timestamp,serverTimestamp"`
	System     bool      `firestore:"system"`
}

type Conversation struct {
	ID           string         `firestore:"-"`
	Members      []string       `firestore:"members"`
	LastMessage  string         `firestore:"lastMessage"`
	LastSenderID string         `firestore:"lastSenderId"`
	LastUpdated  time.Time      `firestore:"lastUpdated"`
	ReadCount    map[string]int `firestore:"readCount"`

	// group fields, zero-valued for direct conversations
	Group   bool   `firestore:"group"`
	Name    string `firestore:"name"`
	AdminID string `firestore:"adminId"`
}

type Member struct {
	UserID   string    `firestore:"userId"`
	Username string    `firestore:"username"`
	AddedAt  time.Time `firestore:"addedAt,serverTimestamp"`
}

type TypingStatus struct {
	UserID    string    `firestore:"userId"`
	Username  string    `firestore:"username"`
	Typing    bool      `firestore:"typing"`
	UpdatedAt time.Time `firestore:"updatedAt,serverTimestamp"`
}

type Viewer struct {
	UserID    string    `firestore:"userId"`
	Active    bool      `firestore:"active"`
	EnteredAt time.Time `firestore:"enteredAt,serverTimestamp"`
}
