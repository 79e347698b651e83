package domain

import "time"

// Conversation and Message live in the ephemeral database and are scoped to a
// session id. Their lifetime is bounded by the container, not by durability
// guarantees.
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:64" json:"conversation_id"`
	SessionID string    `gorm:"index;size:64;not null" json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages"`
}

type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"index;size:64;not null" json:"-"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"not null" json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	DocumentIDs    string    `gorm:"size:2048" json:"-"`
}

// Document records an uploaded file. The bytes themselves live on the tmpfs
// mount; only metadata goes through gorm.
type Document struct {
	ID          string     `gorm:"primaryKey;size:64" json:"document_id"`
	SessionID   string     `gorm:"index;size:64;not null" json:"session_id"`
	Filename    string     `gorm:"size:512;not null" json:"filename"`
	FilePath    string     `gorm:"size:1024;not null" json:"-"`
	SizeBytes   int64      `gorm:"not null" json:"size_bytes"`
	FileType    string     `gorm:"size:16;not null" json:"file_type"`
	UploadedAt  time.Time  `json:"upload_time"`
	PageCount   *int       `json:"page_count,omitempty"`
	WordCount   *int       `json:"word_count,omitempty"`
	ProcessErr  *string    `gorm:"size:1024" json:"processing_error,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
