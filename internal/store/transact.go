package store

import (
	"encoding/json"
	"fmt"
)

// OpKind is the kind of a transaction operation.
type OpKind int

const (
	OpPut OpKind = iota
	OpUpdate
	OpDelete
	OpCheck
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpCheck:
		return "check"
	default:
		return "unknown"
	}
}

// TransactOp is one operation of a TransactWrite.
type TransactOp struct {
	Kind      OpKind
	Key       Key
	Item      Item                   // OpPut
	Fields    map[string]interface{} // OpUpdate
	Condition Condition
}

// PutOp writes item if cond holds.
func PutOp(item Item, cond Condition) TransactOp {
	return TransactOp{Kind: OpPut, Key: item.Key(), Item: item, Condition: cond}
}

// UpdateOp merges fields into the item at key if cond holds.
func UpdateOp(key Key, fields map[string]interface{}, cond Condition) TransactOp {
	return TransactOp{Kind: OpUpdate, Key: key, Fields: fields, Condition: cond}
}

// DeleteOp removes the item at key if cond holds.
func DeleteOp(key Key, cond Condition) TransactOp {
	return TransactOp{Kind: OpDelete, Key: key, Condition: cond}
}

// CheckOp asserts cond on key without writing.
func CheckOp(key Key, cond Condition) TransactOp {
	return TransactOp{Kind: OpCheck, Key: key, Condition: cond}
}

func validateTransact(ops []TransactOp) error {
	if len(ops) > MaxTransactItems {
		return ErrTooManyItems
	}
	seen := make(map[Key]struct{}, len(ops))
	for _, op := range ops {
		if _, dup := seen[op.Key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, op.Key)
		}
		seen[op.Key] = struct{}{}
	}
	return nil
}

// resolve checks the op's condition against the live item and computes what
// the op leaves behind. write is false for checks; next is nil for deletes.
func (op TransactOp) resolve(existing *Item) (next *Item, write bool, err error) {
	if err := op.Condition.check(existing); err != nil {
		return nil, false, fmt.Errorf("%s %s: %w", op.Kind, op.Key, err)
	}

	var version int64 = 1
	if existing != nil {
		version = existing.Version + 1
	}

	switch op.Kind {
	case OpPut:
		item := op.Item
		item.PK, item.SK = op.Key.PK, op.Key.SK
		item.Version = version
		if len(item.Data) == 0 {
			item.Data = json.RawMessage("{}")
		}
		return &item, true, nil
	case OpUpdate:
		var base json.RawMessage
		item := Item{PK: op.Key.PK, SK: op.Key.SK}
		if existing != nil {
			base = existing.Data
			item.ExpiresAt = existing.ExpiresAt
		}
		data, err := mergeFields(base, op.Fields)
		if err != nil {
			return nil, false, fmt.Errorf("update %s: %w", op.Key, err)
		}
		item.Data = data
		item.Version = version
		return &item, true, nil
	case OpDelete:
		return nil, true, nil
	case OpCheck:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("store: unknown op kind %d", op.Kind)
	}
}

// mergeFields sets top-level fields of a JSON object.
func mergeFields(base json.RawMessage, fields map[string]interface{}) (json.RawMessage, error) {
	obj := make(map[string]json.RawMessage)
	if len(base) > 0 {
		if err := json.Unmarshal(base, &obj); err != nil {
			return nil, fmt.Errorf("payload is not an object: %w", err)
		}
	}
	for name, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		obj[name] = raw
	}
	return json.Marshal(obj)
}
