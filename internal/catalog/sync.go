package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KoushikPanda1729/billing-service/pkg/logging"
)

// SyncHandler applies product/topping lifecycle events from the catalog
// service to the local snapshot. Upserts make replays harmless.
type SyncHandler struct {
	store  Store
	logger *logging.Logger
}

func NewSyncHandler(store Store, logger *logging.Logger) *SyncHandler {
	return &SyncHandler{store: store, logger: logger}
}

type catalogEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handle is a kafka.Handler. Unknown events are logged and committed so a
// new upstream event type never wedges the consumer group.
func (h *SyncHandler) Handle(ctx context.Context, key, value []byte) error {
	if len(value) == 0 {
		h.logger.Warn(logging.Fields{Step: "catalog-sync", Message: "empty message value"})
		return nil
	}

	var evt catalogEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		return fmt.Errorf("failed to decode catalog event: %w", err)
	}

	switch evt.Event {
	case "product-created", "product-updated":
		var p Product
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return fmt.Errorf("failed to decode product payload: %w", err)
		}
		if err := h.store.UpsertProduct(ctx, &p); err != nil {
			return err
		}
		h.logger.Info(logging.Fields{Step: "catalog-sync", Message: "product saved: " + p.ID})
	case "product-deleted":
		var p Product
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return fmt.Errorf("failed to decode product payload: %w", err)
		}
		if err := h.store.DeleteProduct(ctx, p.ID); err != nil {
			return err
		}
		h.logger.Info(logging.Fields{Step: "catalog-sync", Message: "product deleted: " + p.ID})
	case "topping-created", "topping-updated":
		var t Topping
		if err := json.Unmarshal(evt.Data, &t); err != nil {
			return fmt.Errorf("failed to decode topping payload: %w", err)
		}
		if err := h.store.UpsertTopping(ctx, &t); err != nil {
			return err
		}
		h.logger.Info(logging.Fields{Step: "catalog-sync", Message: "topping saved: " + t.ID})
	case "topping-deleted":
		var t Topping
		if err := json.Unmarshal(evt.Data, &t); err != nil {
			return fmt.Errorf("failed to decode topping payload: %w", err)
		}
		if err := h.store.DeleteTopping(ctx, t.ID); err != nil {
			return err
		}
		h.logger.Info(logging.Fields{Step: "catalog-sync", Message: "topping deleted: " + t.ID})
	default:
		h.logger.Warn(logging.Fields{Step: "catalog-sync", Message: "unknown event: " + evt.Event})
	}
	return nil
}
