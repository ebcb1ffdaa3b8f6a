package store

import (
	"context"
	"time"

	"PSyncProject/module/sync/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo implements ReadStore and SyncErrorStore on the read database.
type Mongo struct {
	MsgColl     *mongo.Collection
	SummaryColl *mongo.Collection
	ErrColl     *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		MsgColl:     db.Collection(model.ProjectedMessageTable),
		SummaryColl: db.Collection(model.ConversationSummaryTable),
		ErrColl:     db.Collection(model.SyncErrorTable),
	}
}

func (s *Mongo) UpsertMessage(ctx context.Context, m *model.ProjectedMessage) (bool, error) {
	res, err := s.MsgColl.ReplaceOne(ctx,
		bson.M{"_id": m.MessageID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return false, model.ErrTransientStore.WrapMsg("upsert projected message", "message_id", m.MessageID, "err", err)
	}
	return res.UpsertedCount > 0, nil
}

func (s *Mongo) UpdateMessageContent(ctx context.Context, messageID string, content model.MessageContent, editedAtMS int64) (bool, error) {
	res, err := s.MsgColl.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"content": content, "edited_at_ms": editedAtMS}})
	if err != nil {
		return false, model.ErrTransientStore.WrapMsg("update projected message", "message_id", messageID, "err", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *Mongo) SoftDeleteMessage(ctx context.Context, messageID string, deletedAtMS int64) (bool, error) {
	res, err := s.MsgColl.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"deleted_at_ms": deletedAtMS}})
	if err != nil {
		return false, model.ErrTransientStore.WrapMsg("soft delete projected message", "message_id", messageID, "err", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *Mongo) GetMessage(ctx context.Context, messageID string) (*model.ProjectedMessage, error) {
	var m model.ProjectedMessage
	err := s.MsgColl.FindOne(ctx, bson.M{"_id": messageID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, model.ErrTransientStore.WrapMsg("get projected message", "message_id", messageID, "err", err)
	}
	return &m, nil
}

func (s *Mongo) ApplyLastMessage(ctx context.Context, conversationID, tenantID string, last model.LastMessage, incTotal, incUnread int64) (bool, error) {
	// Seq guard: only apply when the rollup is behind this message. The
	// upsert on a non-matching existing document surfaces as a duplicate
	// key on _id, which means the rollup is already at or past this seq.
	res, err := s.SummaryColl.UpdateOne(ctx,
		bson.M{"_id": conversationID, "last_message.seq": bson.M{"$lt": last.Seq}},
		bson.M{
			"$inc": bson.M{"total_messages": incTotal, "unread_count": incUnread},
			"$set": bson.M{
				"tenant_id":     tenantID,
				"last_message":  last,
				"updated_at_ms": time.Now().UnixMilli(),
			},
		},
		options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, model.ErrTransientStore.WrapMsg("apply last message",
			"conversation_id", conversationID, "err", err)
	}
	return res.ModifiedCount > 0 || res.UpsertedCount > 0, nil
}

func (s *Mongo) GetSummary(ctx context.Context, conversationID string) (*model.ConversationSummary, error) {
	var sum model.ConversationSummary
	err := s.SummaryColl.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&sum)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, model.ErrTransientStore.WrapMsg("get conversation summary", "conversation_id", conversationID, "err", err)
	}
	return &sum, nil
}

func (s *Mongo) CountMessages(ctx context.Context) (int64, error) {
	return s.MsgColl.EstimatedDocumentCount(ctx)
}

func (s *Mongo) CountSummaries(ctx context.Context) (int64, error) {
	return s.SummaryColl.EstimatedDocumentCount(ctx)
}

func (s *Mongo) Record(ctx context.Context, rec *model.SyncErrorRecord) error {
	_, err := s.ErrColl.InsertOne(ctx, rec)
	if err != nil {
		return model.ErrTransientStore.WrapMsg("record sync error", "message_id", rec.MessageID, "err", err)
	}
	return nil
}

func (s *Mongo) LoadPending(ctx context.Context, limit int64, maxRetry int) ([]*model.SyncErrorRecord, error) {
	cur, err := s.ErrColl.Find(ctx,
		bson.M{"status": model.SyncStatusPending, "retry_count": bson.M{"$lt": maxRetry}},
		options.Find().SetLimit(limit).SetSort(bson.D{{Key: "created_at_ms", Value: 1}}))
	if err != nil {
		return nil, model.ErrTransientStore.WrapMsg("load pending sync errors", "err", err)
	}
	defer cur.Close(ctx)
	var out []*model.SyncErrorRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, model.ErrTransientStore.WrapMsg("decode pending sync errors", "err", err)
	}
	return out, nil
}

func (s *Mongo) MarkProcessed(ctx context.Context, id string, processedAtMS int64) error {
	_, err := s.ErrColl.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":          model.SyncStatusProcessed,
			"processed_at_ms": processedAtMS,
		}})
	if err != nil {
		return model.ErrTransientStore.WrapMsg("mark sync error processed", "id", id, "err", err)
	}
	return nil
}

func (s *Mongo) MarkRetry(ctx context.Context, id string, errMsg string, lastRetryAtMS int64, terminal bool) error {
	set := bson.M{"error": errMsg, "last_retry_at_ms": lastRetryAtMS}
	if terminal {
		set["status"] = model.SyncStatusFailed
	}
	_, err := s.ErrColl.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"retry_count": 1}, "$set": set})
	if err != nil {
		return model.ErrTransientStore.WrapMsg("mark sync error retried", "id", id, "err", err)
	}
	return nil
}

func (s *Mongo) CountsByEventType(ctx context.Context) (map[string]StatusCounts, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"event_type": "$event_type", "status": "$status"},
			"count": bson.M{"$sum": 1},
		}}},
	}
	cur, err := s.ErrColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, model.ErrTransientStore.WrapMsg("aggregate sync error counts", "err", err)
	}
	defer cur.Close(ctx)

	out := make(map[string]StatusCounts)
	for cur.Next(ctx) {
		var row struct {
			ID struct {
				EventType string `bson:"event_type"`
				Status    string `bson:"status"`
			} `bson:"_id"`
			Count int64 `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, model.ErrTransientStore.WrapMsg("decode sync error counts", "err", err)
		}
		c := out[row.ID.EventType]
		switch row.ID.Status {
		case model.SyncStatusPending:
			c.Pending = row.Count
		case model.SyncStatusProcessed:
			c.Processed = row.Count
		case model.SyncStatusFailed:
			c.Failed = row.Count
		}
		out[row.ID.EventType] = c
	}
	return out, cur.Err()
}

var (
	_ ReadStore      = (*Mongo)(nil)
	_ SyncErrorStore = (*Mongo)(nil)
)
