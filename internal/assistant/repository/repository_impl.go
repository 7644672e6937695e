package repository

import (
	"context"

	"github.com/smallbiznis/creditledger/internal/assistant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, msg *domain.ChatMessage) error {
	return db.WithContext(ctx).Create(msg).Error
}

// ListByUser returns the newest messages first.
func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
