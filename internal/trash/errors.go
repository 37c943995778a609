package trash

import (
	"fmt"

	"github.com/zeebo/errs"
)

// Error wraps store failures that stop an operation before any object is touched.
var Error = errs.Class("trash")

// Failure is one object that could not be processed.
type Failure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// BatchResult summarizes a multi-object operation.
type BatchResult struct {
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

func (r *BatchResult) fail(key string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{Key: key, Error: err.Error()})
}

// BatchError reports a partially applied operation. Objects already processed
// stay processed; repeating the call finishes the remainder.
type BatchError struct {
	Op     string
	Result BatchResult
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %d of %d objects failed", e.Op, e.Result.Failed, e.Result.Processed+e.Result.Failed)
}
