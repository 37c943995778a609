package notify

import (
	"fmt"
	"time"
)

// Kind identifies an account notice.
type Kind string

const (
	KindAccountLocked   Kind = "account_locked"
	KindSuspensionDay7  Kind = "suspension_day7"
	KindSuspensionFinal Kind = "suspension_final"
	KindDataPurged      Kind = "data_purged"
)

// Notice is an email-style message addressed to one user.
type Notice struct {
	Kind           Kind      `json:"kind"`
	UserID         string    `json:"userId"`
	Email          string    `json:"email,omitempty"`
	DisplayName    string    `json:"displayName,omitempty"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	AutoDeleteDate time.Time `json:"autoDeleteDate,omitempty"`
	SentAt         time.Time `json:"sentAt"`
}

// Recipient is the addressee of a notice.
type Recipient struct {
	UserID      string
	Email       string
	DisplayName string
}

const dateLayout = "2006-01-02 15:04 MST"

// AccountLocked announces a suspension for non-payment.
func AccountLocked(to Recipient, autoDelete, now time.Time) Notice {
	return build(KindAccountLocked, to, autoDelete, now,
		"Your KPCloud account is locked",
		fmt.Sprintf("Your balance could not cover this month's storage fee, so your account is locked. "+
			"Downloads, uploads and deletions are disabled. Top up before %s or all stored files will be permanently deleted.",
			autoDelete.UTC().Format(dateLayout)))
}

// SuspensionDay7 is sent a week into a suspension.
func SuspensionDay7(to Recipient, autoDelete, now time.Time) Notice {
	return build(KindSuspensionDay7, to, autoDelete, now,
		"7 days in, 8 remain",
		fmt.Sprintf("Your account has been locked for 7 days. Your files will be deleted on %s unless you top up.",
			autoDelete.UTC().Format(dateLayout)))
}

// SuspensionFinal is the last warning before purge.
func SuspensionFinal(to Recipient, autoDelete, now time.Time) Notice {
	return build(KindSuspensionFinal, to, autoDelete, now,
		"48 hours left",
		fmt.Sprintf("Final warning: your files will be permanently deleted on %s. Top up now to keep them.",
			autoDelete.UTC().Format(dateLayout)))
}

// DataPurged confirms deletion of all stored files.
func DataPurged(to Recipient, now time.Time) Notice {
	return build(KindDataPurged, to, time.Time{}, now,
		"Your KPCloud files were deleted",
		"The grace period ended and all stored files were permanently deleted. Your account now has the free 1 GB plan.")
}

func build(kind Kind, to Recipient, autoDelete, now time.Time, subject, body string) Notice {
	return Notice{
		Kind:           kind,
		UserID:         to.UserID,
		Email:          to.Email,
		DisplayName:    to.DisplayName,
		Subject:        subject,
		Body:           body,
		AutoDeleteDate: autoDelete,
		SentAt:         now,
	}
}
