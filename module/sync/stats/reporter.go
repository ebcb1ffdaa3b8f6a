package stats

import (
	"context"
	"time"

	"PSyncProject/module/sync/store"
)

// FeedSource reports per-collection feed liveness.
type FeedSource interface {
	FeedStatus() map[string]bool
}

// RouterSource reports live fan-out state.
type RouterSource interface {
	SubscriptionCount() int
	RoomCount() int
	PresenceCount() int
}

// Status is the operational snapshot served to monitoring. Field names
// are the contract; the transport (JSON over HTTP here) is not.
type Status struct {
	Feeds               map[string]bool               `json:"feeds"`
	ActiveSubscriptions int                           `json:"activeSubscriptions"`
	Rooms               int                           `json:"rooms"`
	PresenceOnline      int                           `json:"presenceOnline"`
	SyncErrors          map[string]store.StatusCounts `json:"syncErrors"`
	ProjectedMessages   int64                         `json:"projectedMessages"`
	Summaries           int64                         `json:"summaries"`
	GeneratedAtMS       int64                         `json:"generatedAtMs"`
}

// Reporter aggregates counts across the pipeline for visibility.
type Reporter struct {
	feeds  FeedSource
	router RouterSource
	read   store.ReadStore
	errlog store.SyncErrorStore
}

func NewReporter(feeds FeedSource, router RouterSource, read store.ReadStore, errlog store.SyncErrorStore) *Reporter {
	return &Reporter{feeds: feeds, router: router, read: read, errlog: errlog}
}

func (r *Reporter) Status(ctx context.Context) (*Status, error) {
	errCounts, err := r.errlog.CountsByEventType(ctx)
	if err != nil {
		return nil, err
	}
	msgCount, err := r.read.CountMessages(ctx)
	if err != nil {
		return nil, err
	}
	sumCount, err := r.read.CountSummaries(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Feeds:               r.feeds.FeedStatus(),
		ActiveSubscriptions: r.router.SubscriptionCount(),
		Rooms:               r.router.RoomCount(),
		PresenceOnline:      r.router.PresenceCount(),
		SyncErrors:          errCounts,
		ProjectedMessages:   msgCount,
		Summaries:           sumCount,
		GeneratedAtMS:       time.Now().UnixMilli(),
	}, nil
}
