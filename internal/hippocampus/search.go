package hippocampus

import (
	"context"
	"fmt"
	"strings"

	"github.com/roasbeef/lethe/internal/memory"
)

// StoreSearch adapts the message store's full-text search into a SearchFunc,
// rendering each hit as a "[role] content" block.
func StoreSearch(store *memory.Store) SearchFunc {
	return func(ctx context.Context, query string,
		limit int) (string, error) {

		hits, err := store.Search(ctx, query, limit)
		if err != nil {
			return "", err
		}

		blocks := make([]string, len(hits))
		for i, hit := range hits {
			blocks[i] = fmt.Sprintf("[%s] %s", hit.Role,
				hit.Content)
		}

		return strings.Join(blocks, "\n\n"), nil
	}
}
