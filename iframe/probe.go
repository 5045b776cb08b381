package iframe

import (
	"context"
	"fmt"

	"github.com/chrisuehlinger/ersatz/network"
)

// Probe sends a HEAD request to uri and reports transport failures only.
// Like an opaque no-cors fetch, any HTTP response counts as reachable.
func Probe(ctx context.Context, client *network.Client, uri string) error {
	if _, err := client.Head(ctx, uri, map[string]string{"Accept": "*/*"}); err != nil {
		return fmt.Errorf("probe %s: %w", uri, err)
	}
	return nil
}
