package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"gorm.io/datatypes"
)

// ChatMessage is one answered question. Failed calls leave no row.
type ChatMessage struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID    string            `gorm:"type:varchar(64);not null;index:ix_chat_messages_user_created,priority:1" json:"user_id"`
	Question  string            `gorm:"type:text;not null" json:"question"`
	Answer    string            `gorm:"type:text;not null" json:"answer"`
	NoteTitle *string           `gorm:"type:varchar(255)" json:"note_title,omitempty"`
	Mode      usagedomain.Mode  `gorm:"type:varchar(8);not null" json:"mode"`
	Model     string            `gorm:"type:varchar(64);not null" json:"model"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index:ix_chat_messages_user_created,priority:2" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

func Models() []any {
	return []any{&ChatMessage{}}
}
