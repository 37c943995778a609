// Package usage computes how many bytes a user currently stores.
package usage

import (
	"context"
	"time"

	"github.com/kpcloud/kpcloud/internal/metrics"
	"github.com/kpcloud/kpcloud/internal/objectstore"
	"github.com/zeebo/errs"
)

// Error wraps failures while scanning a user's objects.
var Error = errs.Class("usage")

// Usage is the result of a full scan of a user's namespace.
type Usage struct {
	UsedBytes   int64 `json:"usedBytes"`
	ObjectCount int   `json:"objectCount"`
	TrashBytes  int64 `json:"trashBytes"`
}

// Accountant sums object sizes under a user's prefix. Every call performs a
// fresh scan of all listing pages; nothing is cached, so cost grows with the
// number of stored objects.
type Accountant struct {
	store   objectstore.Store
	timeout time.Duration
}

// NewAccountant constructs an accountant. timeout bounds a single scan; zero
// means the caller's context alone bounds it.
func NewAccountant(store objectstore.Store, timeout time.Duration) *Accountant {
	return &Accountant{store: store, timeout: timeout}
}

// ComputeUsage returns the bytes stored by userID, trash included.
func (a *Accountant) ComputeUsage(ctx context.Context, userID string) (Usage, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	var u Usage
	err := objectstore.Walk(ctx, a.store, objectstore.UserPrefix(userID), func(obj objectstore.ObjectInfo) error {
		u.UsedBytes += obj.Size
		u.ObjectCount++
		if objectstore.IsTrashKey(obj.Key) {
			u.TrashBytes += obj.Size
		}
		return nil
	})
	if err != nil {
		return Usage{}, Error.Wrap(err)
	}

	metrics.UsageScanned(u.ObjectCount, time.Since(start))
	return u, nil
}
