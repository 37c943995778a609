package activity

import (
	"time"

	"github.com/google/uuid"
)

// Action names an audited operation.
type Action string

const (
	ActionUpload            Action = "UPLOAD"
	ActionUploadStarted     Action = "UPLOAD_STARTED"
	ActionMoveToTrash       Action = "MOVE_TO_TRASH"
	ActionPermanentDelete   Action = "PERMANENT_DELETE"
	ActionRestore           Action = "RESTORE"
	ActionEmptyTrash        Action = "EMPTY_TRASH"
	ActionShareLink         Action = "SHARE_LINK"
	ActionPreview           Action = "PREVIEW"
	ActionDownload          Action = "DOWNLOAD"
	ActionCreditTopUp       Action = "CREDIT_TOPUP"
	ActionQuotaChanged      Action = "QUOTA_CHANGED"
	ActionBillingRenewal    Action = "BILLING_RENEWAL"
	ActionBillingSuspension Action = "BILLING_SUSPENSION"
	ActionBillingRecovery   Action = "BILLING_RECOVERY"
	ActionAutoPurge         Action = "AUTO_PURGE"
)

// Entry is one line of a user's activity log.
type Entry struct {
	ID        uuid.UUID `json:"id" bson:"_id"`
	UserID    string    `json:"-" bson:"userId"`
	Action    Action    `json:"action" bson:"action"`
	Path      string    `json:"path,omitempty" bson:"path,omitempty"`
	Detail    string    `json:"detail,omitempty" bson:"detail,omitempty"`
	CreatedAt time.Time `json:"timestamp" bson:"createdAt"`
}
