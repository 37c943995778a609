package objectstore

import (
	"context"
)

// deleteBatchSize matches the S3 DeleteObjects limit.
const deleteBatchSize = 1000

// Walk calls fn for every object under prefix, following continuation tokens
// until the listing is exhausted or ctx is done.
func Walk(ctx context.Context, store Store, prefix string, fn func(ObjectInfo) error) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := store.List(ctx, prefix, token)
		if err != nil {
			return err
		}
		for _, obj := range page.Objects {
			if err := fn(obj); err != nil {
				return err
			}
		}
		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
	}
}

// ListAll collects every object under prefix.
func ListAll(ctx context.Context, store Store, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := Walk(ctx, store, prefix, func(obj ObjectInfo) error {
		out = append(out, obj)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeletePrefix removes every object under prefix and returns how many keys
// were submitted for deletion. The listing is fully enumerated before the
// first delete so pagination is not disturbed by the removals.
func DeletePrefix(ctx context.Context, store Store, prefix string) (int, error) {
	var keys []string
	err := Walk(ctx, store, prefix, func(obj ObjectInfo) error {
		keys = append(keys, obj.Key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		if err := store.DeleteMany(ctx, keys[start:end]); err != nil {
			return start, err
		}
	}
	return len(keys), nil
}
