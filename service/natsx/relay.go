package natsx

import (
	"encoding/json"

	"PSyncProject/logger"
	"PSyncProject/module/sync/model"
	"PSyncProject/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Relay republishes normalized change events to NATS so sibling
// gateway nodes can fan out to their own local subscribers. Best
// effort: a publish failure is logged, never blocks the feed.
type Relay struct {
	nc            *nats.Conn
	subjectPrefix string
}

func NewRelay(url, subjectPrefix string) (*Relay, error) {
	nc, err := nats.Connect(url,
		nats.Name("chat-sync-relay"),
		nats.MaxReconnects(-1),
		// each node already fans out its own changes locally
		nats.NoEcho(),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect", "url", url)
	}
	return &Relay{nc: nc, subjectPrefix: subjectPrefix}, nil
}

// Publish implements the watcher sink. Subject layout:
// <prefix>.<collection>.<operation>, e.g. sync.change.projected_messages.insert.
func (r *Relay) Publish(ev model.ChangeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("relay marshal failed",
			zap.String("collection", ev.Collection), zap.Error(err))
		return
	}
	subject := r.subjectPrefix + "." + ev.Key()
	if err := r.nc.Publish(subject, data); err != nil {
		logger.Warn("relay publish failed",
			zap.String("subject", subject), zap.Error(err))
	}
}

// Subscribe consumes relayed events from sibling nodes and hands them
// to the given sink (normally the local fan-out router).
func (r *Relay) Subscribe(sink func(ev model.ChangeEvent)) (*nats.Subscription, error) {
	subject := r.subjectPrefix + ".>"
	return r.nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev model.ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger.Error("relay decode failed", zap.Error(err))
			return
		}
		sink(ev)
	})
}

func (r *Relay) Close() {
	if r.nc != nil {
		r.nc.Drain()
	}
}
