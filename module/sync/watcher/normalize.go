package watcher

import (
	"fmt"
	"time"

	"PSyncProject/module/sync/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RawChange is the shape of a native change-stream document, the part
// of it this pipeline cares about.
type RawChange struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID any `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument      bson.M `bson:"fullDocument"`
	UpdateDescription *struct {
		UpdatedFields bson.M   `bson:"updatedFields"`
		RemovedFields []string `bson:"removedFields"`
	} `bson:"updateDescription"`
}

// Normalize maps a raw change notification onto the canonical
// ChangeEvent: native operation names to the enum, tenant pulled from
// the full document when present, local timestamp stamped. Returns
// ok=false for operation types the pipeline does not forward.
func Normalize(collection string, raw RawChange) (model.ChangeEvent, bool) {
	switch raw.OperationType {
	case model.OpInsert, model.OpUpdate, model.OpReplace, model.OpDelete:
	default:
		return model.ChangeEvent{}, false
	}

	ev := model.ChangeEvent{
		OperationType: raw.OperationType,
		Collection:    collection,
		DocumentID:    stringifyID(raw.DocumentKey.ID),
		TimestampMS:   time.Now().UnixMilli(),
	}
	if len(raw.FullDocument) > 0 {
		ev.FullDocument = map[string]any(raw.FullDocument)
		if tenant, ok := raw.FullDocument["tenant_id"].(string); ok {
			ev.TenantID = tenant
		}
	}
	if raw.UpdateDescription != nil {
		ev.UpdateDescription = &model.UpdateDescription{
			UpdatedFields: map[string]any(raw.UpdateDescription.UpdatedFields),
			RemovedFields: raw.UpdateDescription.RemovedFields,
		}
	}
	return ev, true
}

func stringifyID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
