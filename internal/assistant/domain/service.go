package domain

import (
	"context"

	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
)

// Inference produces a completion for a prompt. Implementations must not
// touch the ledger.
type Inference interface {
	Model() string
	Generate(ctx context.Context, prompt string) (string, error)
}

type AskRequest struct {
	UserID      string `json:"-"`
	Message     string `json:"message"`
	NoteContext string `json:"context"`
	NoteTitle   string `json:"note_title"`
}

type AskResponse struct {
	Reply     string              `json:"reply"`
	MessageID string              `json:"message_id,omitempty"`
	Mode      usagedomain.Mode    `json:"mode"`
	Usage     *usagedomain.Status `json:"usage,omitempty"`
}

type Service interface {
	Ask(ctx context.Context, req AskRequest) (*AskResponse, error)
	History(ctx context.Context, userID string, limit int) ([]ChatMessage, error)
}
