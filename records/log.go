package records

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/medconn/medconnect/sheetstore"
)

// Interaction is one row of the Interacciones_Bot audit sheet.
type Interaction struct {
	UserID     string
	Username   string
	Message    string
	Response   string
	ActionType string
}

// InteractionLog records every handled update for the dashboard audit view.
// A failed write must never break the conversation, so Record logs and
// swallows store errors.
type InteractionLog struct {
	table  *sheetstore.Table
	logger *slog.Logger
	now    func() time.Time
}

func (l *InteractionLog) Record(in Interaction) {
	ts := l.now()
	_, err := l.table.Append(map[string]string{
		"id":          fmt.Sprintf("INT_%s", ts.Format("20060102_150405")),
		"user_id":     in.UserID,
		"username":    in.Username,
		"message":     in.Message,
		"response":    in.Response,
		"timestamp":   ts.Format("2006-01-02 15:04:05"),
		"action_type": in.ActionType,
		"status":      StatusCompleted,
	})
	if err != nil {
		l.logger.Warn("interaction_log_write_failed",
			"user_id", in.UserID,
			"action_type", in.ActionType,
			"error", err)
	}
}
