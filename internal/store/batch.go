package store

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEachChunk runs fn over consecutive chunks of at most size elements,
// concurrently. The first error cancels the remaining chunks.
func forEachChunk[T any](ctx context.Context, items []T, size int, fn func(ctx context.Context, chunk []T) error) error {
	if len(items) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(items); start += size {
		chunk := items[start:min(start+size, len(items))]
		g.Go(func() error {
			return fn(ctx, chunk)
		})
	}
	return g.Wait()
}

func uniqueKeys(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func putOps(items []Item) []TransactOp {
	ops := make([]TransactOp, len(items))
	for i, item := range items {
		ops[i] = PutOp(item, Always())
	}
	return ops
}

func deleteOps(keys []Key) []TransactOp {
	ops := make([]TransactOp, len(keys))
	for i, k := range keys {
		ops[i] = DeleteOp(k, Always())
	}
	return ops
}
