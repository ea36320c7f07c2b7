package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cardvault-api/internal/model"
	"cardvault-api/internal/store"
)

// PresenceRepository records user heartbeats.
type PresenceRepository struct {
	store store.Store
}

// NewPresenceRepository creates a new presence repository.
func NewPresenceRepository(st store.Store) *PresenceRepository {
	return &PresenceRepository{store: st}
}

// Heartbeat marks userID as seen at now.
func (r *PresenceRepository) Heartbeat(ctx context.Context, userID string, now time.Time) (model.Presence, error) {
	p := model.Presence{UserID: userID, LastSeen: now}
	item, err := store.NewItem(PresenceKey(userID), p)
	if err != nil {
		return model.Presence{}, err
	}
	if err := r.store.Put(ctx, item); err != nil {
		return model.Presence{}, fmt.Errorf("heartbeat %s: %w", userID, err)
	}
	return p, nil
}

// GetMany returns the presence of each user that has one.
func (r *PresenceRepository) GetMany(ctx context.Context, userIDs []string) (map[string]model.Presence, error) {
	keys := make([]store.Key, len(userIDs))
	for i, id := range userIDs {
		keys[i] = PresenceKey(id)
	}
	items, err := r.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("batch get presence: %w", err)
	}

	out := make(map[string]model.Presence, len(items))
	for _, item := range items {
		var p model.Presence
		if err := item.Decode(&p); err != nil {
			return nil, err
		}
		if p.UserID == "" {
			p.UserID = strings.TrimPrefix(item.PK, "USER#")
		}
		out[p.UserID] = p
	}
	return out, nil
}
