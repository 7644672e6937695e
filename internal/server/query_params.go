package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func parseOptionalInt64(value string) (*int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

// parseLimit clamps ?limit= to [1, maxListLimit].
func parseLimit(value string) (int, error) {
	parsed, err := parseOptionalInt64(value)
	if err != nil {
		return 0, err
	}
	switch {
	case parsed == nil:
		return defaultListLimit, nil
	case *parsed <= 0:
		return 0, errors.New("invalid_limit")
	case *parsed > maxListLimit:
		return maxListLimit, nil
	default:
		return int(*parsed), nil
	}
}

func parseOptionalStatus(value string) (ledgerdomain.Status, error) {
	status := ledgerdomain.Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case "", ledgerdomain.StatusPending, ledgerdomain.StatusSuccess, ledgerdomain.StatusFailed, ledgerdomain.StatusRefunded:
		return status, nil
	default:
		return "", errors.New("invalid_status")
	}
}

// historyQuery reads the ?before=&limit= pair shared by history listings.
func historyQuery(before, limit string) (snowflake.ID, int, error) {
	beforeID, err := parseOptionalSnowflakeID(before)
	if err != nil {
		return 0, 0, newValidationError("before", "invalid_before", "invalid before")
	}
	n, err := parseLimit(limit)
	if err != nil {
		return 0, 0, newValidationError("limit", "invalid_limit", "invalid limit")
	}
	if beforeID == nil {
		return 0, n, nil
	}
	return *beforeID, n, nil
}
