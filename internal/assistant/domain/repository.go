package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, msg *ChatMessage) error
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]ChatMessage, error)
}
