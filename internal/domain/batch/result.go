// Package batch holds per-item outcomes of batch indexing.
package batch

import "github.com/atlasmeta/contentdex/internal/domain/content"

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of indexing one content record of a batch.
type Result struct {
	id     content.ID
	status ItemStatus
	err    error
}

// NewOK creates a successful batch result.
func NewOK(id content.ID) Result { return Result{id: id, status: StatusOK} }

// NewError creates a failed batch result. A nil err still marks the item failed.
func NewError(id content.ID, err error) Result { return Result{id: id, status: StatusError, err: err} }

// ID returns the content id of the item.
func (r Result) ID() content.ID { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// OK reports whether the item was indexed.
func (r Result) OK() bool { return r.status == StatusOK }

// Tally counts indexed and failed items.
func Tally(results []Result) (succeeded, failed int) {
	for _, r := range results {
		if r.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Failed returns the ids of items that were not indexed, in batch order.
func Failed(results []Result) []content.ID {
	var ids []content.ID
	for _, r := range results {
		if !r.OK() {
			ids = append(ids, r.id)
		}
	}
	return ids
}
