package service

import (
	"context"
	"fmt"

	"cardvault-api/internal/model"
	"cardvault-api/internal/retry"
	"cardvault-api/pkg/apierror"
)

// Inventory operation types.
const (
	OpAddCard      = "addCard"
	OpRemoveCard   = "removeCard"
	OpSetCardLevel = "setCardLevel"
	OpAddPack      = "addPack"
	OpRemovePack   = "removePack"
)

// InventoryOperation is one edit of a modify request.
type InventoryOperation struct {
	Type     string               `json:"type"`
	Card     *model.InventoryCard `json:"card,omitempty"`
	CardID   string               `json:"cardId,omitempty"`
	Level    int                  `json:"level,omitempty"`
	PackName string               `json:"packName,omitempty"`
	Quantity *int                 `json:"quantity,omitempty"`
}

func (op InventoryOperation) quantity() int {
	if op.Quantity == nil {
		return 1
	}
	return *op.Quantity
}

func (op InventoryOperation) validate() error {
	switch op.Type {
	case OpAddCard:
		if op.Card == nil {
			return fmt.Errorf("%s requires card", op.Type)
		}
		if op.Card.CardID == "" || op.Card.CardName == "" {
			return model.ErrInvalidCard
		}
	case OpRemoveCard:
		if op.CardID == "" {
			return fmt.Errorf("%s requires cardId", op.Type)
		}
	case OpSetCardLevel:
		if op.CardID == "" {
			return fmt.Errorf("%s requires cardId", op.Type)
		}
		if op.Level < 1 {
			return model.ErrInvalidLevel
		}
	case OpAddPack, OpRemovePack:
		if op.PackName == "" {
			return model.ErrInvalidPackName
		}
		if op.quantity() < 1 {
			return model.ErrInvalidQuantity
		}
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
	return nil
}

func (op InventoryOperation) apply(inv *model.UserInventory) error {
	switch op.Type {
	case OpAddCard:
		return inv.AddCard(*op.Card)
	case OpRemoveCard:
		_, err := inv.RemoveCard(op.CardID)
		return err
	case OpSetCardLevel:
		return inv.SetCardLevel(op.CardID, op.Level)
	case OpAddPack:
		return inv.AddPack(op.PackName, op.quantity())
	case OpRemovePack:
		return inv.RemovePack(op.PackName, op.quantity())
	}
	return fmt.Errorf("unknown operation type %q", op.Type)
}

// InventoryService applies direct inventory edits.
type InventoryService struct {
	*core
}

// Get returns the user's inventory; unknown users get an empty one at
// version 0.
func (s *InventoryService) Get(ctx context.Context, userID string) (*model.UserInventory, error) {
	if userID == "" {
		return nil, apierror.BadRequest("userId is required")
	}
	return s.repos.Inventory.Get(ctx, userID)
}

// Modify applies ops in order to the user's inventory and commits the
// result as one write conditioned on the version read.
func (s *InventoryService) Modify(ctx context.Context, userID string, ops []InventoryOperation) (inv *model.UserInventory, err error) {
	defer func() { observe("inventory.modify", err) }()

	if userID == "" {
		return nil, apierror.BadRequest("userId is required")
	}
	if len(ops) == 0 {
		return nil, apierror.BadRequest("operations must not be empty")
	}
	for i, op := range ops {
		if err := op.validate(); err != nil {
			return nil, apierror.BadRequest(fmt.Sprintf("operations[%d]: %v", i, err))
		}
	}

	return retry.Do(ctx, s.policy("inventory.modify"), func(ctx context.Context) (*model.UserInventory, error) {
		current, err := s.repos.Inventory.Get(ctx, userID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		for _, op := range ops {
			if err := op.apply(next); err != nil {
				return nil, domainError(err)
			}
		}

		if err := s.repos.Inventory.Save(ctx, next); err != nil {
			return nil, err
		}
		return next, nil
	})
}
