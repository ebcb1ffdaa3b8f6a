package watcher

import (
	"context"
	"sync"

	"PSyncProject/logger"
	"PSyncProject/module/sync/model"
	"PSyncProject/tools/safe"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Sink receives every normalized change event, in feed order for its
// collection. The fan-out router and the NATS relay are sinks.
type Sink interface {
	Publish(ev model.ChangeEvent)
}

type feed struct {
	collection string
	cancel     context.CancelFunc
	active     bool
	// resumeToken is kept in memory only; RestartChangeStreams resumes
	// from it within this process lifetime. Across restarts the gap is
	// missed (no persisted checkpoint).
	resumeToken bson.Raw
}

// Watcher tails one native change stream per read-store collection and
// publishes normalized events to the bus and the sinks. A closed feed
// stays inactive until RestartChangeStreams is called.
type Watcher struct {
	db    *mongo.Database
	bus   *Bus
	sinks []Sink

	mu    sync.Mutex
	feeds map[string]*feed
	wg    sync.WaitGroup
}

func NewWatcher(db *mongo.Database, bus *Bus, sinks ...Sink) *Watcher {
	return &Watcher{
		db:    db,
		bus:   bus,
		sinks: sinks,
		feeds: make(map[string]*feed),
	}
}

// Start opens one long-lived change stream per named collection.
func (w *Watcher) Start(ctx context.Context, collections []string) error {
	for _, coll := range collections {
		if err := w.openFeed(ctx, coll, nil); err != nil {
			return err
		}
	}
	return nil
}

// Stop closes all feeds and waits for the read loops to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for _, f := range w.feeds {
		f.cancel()
		f.active = false
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// RestartChangeStreams reopens every inactive feed, resuming from the
// in-memory token when one was captured. Events emitted while the feed
// was down and no token exists are permanently missed.
func (w *Watcher) RestartChangeStreams(ctx context.Context) error {
	w.mu.Lock()
	var stale []*feed
	for _, f := range w.feeds {
		if !f.active {
			stale = append(stale, f)
		}
	}
	w.mu.Unlock()

	for _, f := range stale {
		if err := w.openFeed(ctx, f.collection, f.resumeToken); err != nil {
			return err
		}
	}
	return nil
}

// FeedStatus reports active/inactive per collection.
func (w *Watcher) FeedStatus() map[string]bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]bool, len(w.feeds))
	for coll, f := range w.feeds {
		out[coll] = f.active
	}
	return out
}

func (w *Watcher) openFeed(ctx context.Context, collection string, resumeToken bson.Raw) error {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if len(resumeToken) > 0 {
		opts.SetResumeAfter(resumeToken)
	}
	feedCtx, cancel := context.WithCancel(ctx)
	stream, err := w.db.Collection(collection).Watch(feedCtx, mongo.Pipeline{}, opts)
	if err != nil {
		cancel()
		return model.ErrFeedClosed.WrapMsg("open", "collection", collection)
	}

	w.mu.Lock()
	f, ok := w.feeds[collection]
	if !ok {
		f = &feed{collection: collection}
		w.feeds[collection] = f
	}
	f.cancel = cancel
	f.active = true
	w.mu.Unlock()

	logger.Info("change feed opened", zap.String("collection", collection))

	w.wg.Add(1)
	safe.SafeGo("feed-"+collection, func() {
		defer w.wg.Done()
		w.readLoop(feedCtx, collection, f, stream)
	})
	return nil
}

// readLoop delivers notifications sequentially for one collection.
// Feed errors are logged, never fatal to the process.
func (w *Watcher) readLoop(ctx context.Context, collection string, f *feed, stream *mongo.ChangeStream) {
	defer func() {
		_ = stream.Close(context.Background())
		w.mu.Lock()
		f.active = false
		w.mu.Unlock()
	}()

	for stream.Next(ctx) {
		var raw RawChange
		if err := stream.Decode(&raw); err != nil {
			logger.Error("change decode failed",
				zap.String("collection", collection), zap.Error(err))
			continue
		}
		if raw.OperationType == "invalidate" {
			logger.Error("change feed invalidated",
				zap.String("collection", collection))
			return
		}

		w.mu.Lock()
		f.resumeToken = stream.ResumeToken()
		w.mu.Unlock()

		ev, ok := Normalize(collection, raw)
		if !ok {
			continue
		}
		w.bus.Publish(ev)
		for _, sink := range w.sinks {
			sink.Publish(ev)
		}
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		logger.Error("change feed closed, restart required",
			zap.String("collection", collection), zap.Error(err))
	} else {
		logger.Info("change feed stopped", zap.String("collection", collection))
	}
}
