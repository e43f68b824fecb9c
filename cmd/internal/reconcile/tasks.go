package reconcile

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// TypePurgeAccount removes every trace of one account.
	TypePurgeAccount = "account:purge"

	// QueueDefault is the queue reconciliation tasks run on.
	QueueDefault = "reconcile"

	maxRetry = 12
)

// PurgePayload is the body of an account:purge task.
type PurgePayload struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

// NewPurgeTask builds an account:purge task.
func NewPurgeTask(accountID, reason string) (*asynq.Task, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, errors.New("reconcile: account id is required")
	}
	b, err := json.Marshal(PurgePayload{AccountID: accountID, Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePurgeAccount, b, asynq.Queue(QueueDefault), asynq.MaxRetry(maxRetry)), nil
}
