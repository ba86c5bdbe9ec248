package worker

import (
	"context"
	"fmt"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
)

// ConsulSource loads worker catalog metadata (name, description) from
// Consul KV instead of static config (SPEC_FULL.md §C.7). It only supplies
// the catalog entries' Name/Description — the caller still constructs and
// attaches each worker's *driver.Driver, since Consul has no notion of an
// in-process middleware stack.
type ConsulSource struct {
	client *consulapi.Client
	prefix string
}

// NewConsulSource wraps a Consul client. Entries are read from KV pairs
// under prefix, keyed "<prefix>/<name>/description".
func NewConsulSource(client *consulapi.Client, prefix string) *ConsulSource {
	if prefix == "" {
		prefix = "agentcore/workers"
	}
	return &ConsulSource{client: client, prefix: strings.TrimSuffix(prefix, "/")}
}

// List returns the name -> description catalog currently stored in Consul.
func (c *ConsulSource) List(ctx context.Context) (map[string]string, error) {
	pairs, _, err := c.client.KV().List(c.prefix+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("worker: consul KV list: %w", err)
	}
	out := make(map[string]string)
	suffix := "/description"
	for _, pair := range pairs {
		if !strings.HasSuffix(pair.Key, suffix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(pair.Key, c.prefix+"/"), suffix)
		if name == "" {
			continue
		}
		out[name] = string(pair.Value)
	}
	return out, nil
}
