package notify

import (
	"asset_lending_tool/db"
	"asset_lending_tool/models"
	"context"
	"encoding/json"

	"gorm.io/datatypes"
)

// Inbox stores events as in-app notifications for the recipient.
type Inbox struct {
	Repo *db.Repo
}

func (in Inbox) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return in.Repo.CreateNotification(ctx, &models.Notification{
		RecipientID: ev.RecipientID,
		Kind:        string(ev.Kind),
		LoanID:      ev.LoanID,
		Payload:     datatypes.JSON(payload),
		CreatedAt:   ev.At,
	})
}
