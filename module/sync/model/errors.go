package model

import "PSyncProject/tools/errs"

// Error taxonomy of the sync pipeline.
var (
	// ErrTransientStore: timeout/connectivity talking to the read store.
	// The mongo store wraps its driver errors with it; entries land in
	// the error log and are retried by the recovery worker.
	ErrTransientStore = errs.NewCodeError(21001, "transient read-store error")

	// ErrDataIntegrity: the canonical record referenced by an event no
	// longer exists; re-deriving is impossible, surfaced for inspection.
	ErrDataIntegrity = errs.NewCodeError(21002, "canonical record missing")

	// ErrProjectionGap: an edit/delete arrived before the projection it
	// targets; recoverable, queued for the next sweep.
	ErrProjectionGap = errs.NewCodeError(21003, "projected document missing")

	// ErrFeedClosed: the change feed was closed or invalidated by the
	// store; the feed stays inactive until explicitly restarted.
	ErrFeedClosed = errs.NewCodeError(21004, "change feed closed")
)

func IsTransientStore(err error) bool { return ErrTransientStore.Is(err) }
func IsDataIntegrity(err error) bool  { return ErrDataIntegrity.Is(err) }
func IsProjectionGap(err error) bool  { return ErrProjectionGap.Is(err) }
