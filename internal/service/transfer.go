package service

import (
	"context"
	"fmt"
	"net/http"

	"cardvault-api/internal/events"
	"cardvault-api/internal/model"
	"cardvault-api/internal/retry"
	"cardvault-api/internal/store"
	"cardvault-api/pkg/apierror"
	"cardvault-api/pkg/response"
	"cardvault-api/pkg/uid"
)

// PackTransfer moves Quantity packs (default 1).
type PackTransfer struct {
	PackName string `json:"packName"`
	Quantity *int   `json:"quantity,omitempty"`
}

func (p PackTransfer) quantity() int {
	if p.Quantity == nil {
		return 1
	}
	return *p.Quantity
}

// TransferLeg moves assets from one user to another.
type TransferLeg struct {
	FromUserID string         `json:"fromUserId"`
	ToUserID   string         `json:"toUserId"`
	Cards      []string       `json:"cards,omitempty"`
	Packs      []PackTransfer `json:"packs,omitempty"`
}

// TransferRequest is a batch of legs applied atomically.
type TransferRequest struct {
	Transfers []TransferLeg `json:"transfers"`
}

// TransferResult lists every inventory the transfer wrote.
type TransferResult struct {
	Inventories []*model.UserInventory `json:"inventories"`
}

// TransferOutcome is the HTTP response of a transfer, fresh or replayed.
type TransferOutcome struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}

// TransferService executes multi-party transfers exactly once per
// idempotency key.
type TransferService struct {
	*core
}

// users validates the legs and returns the distinct users in first-seen
// order.
func (r TransferRequest) users() ([]string, error) {
	if len(r.Transfers) == 0 {
		return nil, apierror.BadRequest("transfers must not be empty")
	}
	seen := make(map[string]bool)
	var users []string
	for i, leg := range r.Transfers {
		if leg.FromUserID == "" || leg.ToUserID == "" {
			return nil, apierror.BadRequest(fmt.Sprintf("transfers[%d]: fromUserId and toUserId are required", i))
		}
		if leg.FromUserID == leg.ToUserID {
			return nil, apierror.BadRequest(fmt.Sprintf("transfers[%d]: fromUserId and toUserId must differ", i))
		}
		if len(leg.Cards) == 0 && len(leg.Packs) == 0 {
			return nil, apierror.BadRequest(fmt.Sprintf("transfers[%d]: nothing to transfer", i))
		}
		for _, id := range leg.Cards {
			if id == "" {
				return nil, apierror.BadRequest(fmt.Sprintf("transfers[%d]: empty cardId", i))
			}
		}
		for _, p := range leg.Packs {
			if p.PackName == "" {
				return nil, apierror.BadRequest(fmt.Sprintf("transfers[%d]: packName is required", i))
			}
			if p.quantity() < 1 {
				return nil, apierror.BadRequest(fmt.Sprintf("transfers[%d]: quantity must be a positive integer", i))
			}
		}
		for _, u := range []string{leg.FromUserID, leg.ToUserID} {
			if !seen[u] {
				seen[u] = true
				users = append(users, u)
			}
		}
	}
	if len(users) > store.MaxTransactItems {
		return nil, apierror.BadRequest(fmt.Sprintf("at most %d distinct users per transfer", store.MaxTransactItems))
	}
	return users, nil
}

// Transfer claims key, runs the transfer and stores its outcome. A key that
// already completed replays the stored response; a key still in flight is
// a conflict. When retries are exhausted or an unexpected error occurs the
// claim is released so the client may retry with the same key.
func (s *TransferService) Transfer(ctx context.Context, key string, req TransferRequest) (out *TransferOutcome, err error) {
	defer func() { observe("transfer", err) }()

	if !uid.IsValidKey(key) {
		return nil, apierror.BadRequest("Idempotency-Key header is required (printable, at most 128 bytes)")
	}

	existing, err := s.repos.Idempotency.Claim(ctx, key, s.now(), s.opts.IdempotencyTTL)
	if err != nil {
		if store.IsConflict(err) {
			return nil, apierror.Conflict("request with this Idempotency-Key is already processing")
		}
		return nil, err
	}
	if existing != nil {
		if existing.Status == model.IdempotencyCompleted {
			return &TransferOutcome{StatusCode: existing.StatusCode, Body: existing.ResponseBody, Replayed: true}, nil
		}
		return nil, apierror.Conflict("request with this Idempotency-Key is already processing")
	}

	result, err := s.execute(ctx, req)
	switch {
	case err == nil:
		body, encErr := response.Envelope(result)
		if encErr != nil {
			s.release(ctx, key)
			return nil, encErr
		}
		out = &TransferOutcome{StatusCode: http.StatusOK, Body: body}
		s.complete(ctx, key, out)
		s.publish(ctx, events.TransferCompleted, result)
		return out, nil

	case isBusinessError(err):
		apiErr, _ := apierror.As(err)
		out = &TransferOutcome{StatusCode: apiErr.StatusCode, Body: apiErr.ToJSON()}
		s.complete(ctx, key, out)
		return out, nil

	default:
		s.release(ctx, key)
		return nil, err
	}
}

func (s *TransferService) complete(ctx context.Context, key string, out *TransferOutcome) {
	if err := s.repos.Idempotency.Complete(ctx, key, out.StatusCode, out.Body); err != nil {
		s.log.Error().Err(err).Str("idempotency_key", key).Msg("failed to store transfer outcome")
	}
}

func (s *TransferService) release(ctx context.Context, key string) {
	if err := s.repos.Idempotency.Release(ctx, key); err != nil {
		s.log.Error().Err(err).Str("idempotency_key", key).Msg("failed to release idempotency key")
	}
}

func (s *TransferService) execute(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	users, err := req.users()
	if err != nil {
		return nil, err
	}

	return retry.Do(ctx, s.policy("transfer"), func(ctx context.Context) (*TransferResult, error) {
		loaded, err := s.repos.Inventory.GetMany(ctx, users)
		if err != nil {
			return nil, err
		}

		working := make(map[string]*model.UserInventory, len(loaded))
		for id, inv := range loaded {
			working[id] = inv.Clone()
		}

		for i, leg := range req.Transfers {
			from, to := working[leg.FromUserID], working[leg.ToUserID]
			for _, cardID := range leg.Cards {
				card, err := from.RemoveCard(cardID)
				if err != nil {
					return nil, legError(i, err)
				}
				if err := to.AddCard(card); err != nil {
					return nil, legError(i, err)
				}
			}
			for _, p := range leg.Packs {
				if err := from.RemovePack(p.PackName, p.quantity()); err != nil {
					return nil, legError(i, err)
				}
				if err := to.AddPack(p.PackName, p.quantity()); err != nil {
					return nil, legError(i, err)
				}
			}
		}

		ops := make([]store.TransactOp, 0, len(users))
		for _, id := range users {
			op, err := s.repos.Inventory.SaveOp(working[id])
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
		if err := s.repos.Store.TransactWrite(ctx, ops); err != nil {
			return nil, err
		}

		result := &TransferResult{Inventories: make([]*model.UserInventory, 0, len(users))}
		for _, id := range users {
			inv := working[id]
			inv.Version++
			result.Inventories = append(result.Inventories, inv)
		}
		return result, nil
	})
}

func legError(i int, err error) error {
	mapped := domainError(err)
	if apiErr, ok := apierror.As(mapped); ok {
		return &apierror.Error{
			StatusCode: apiErr.StatusCode,
			Code:       apiErr.Code,
			Message:    fmt.Sprintf("transfers[%d]: %s", i, apiErr.Message),
		}
	}
	return mapped
}
