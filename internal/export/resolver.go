package export

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"
)

// StaticResolver resolves display names from a fixed map. IDs without an
// entry resolve to the unknown-user placeholder.
type StaticResolver map[string]string

var _ UsernameResolver = (StaticResolver)(nil)

func (r StaticResolver) ResolveUsernames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := r[id]; ok && name != "" {
			out[id] = name
		} else {
			out[id] = UnknownUser
		}
	}
	return out, nil
}

// LoadUsers reads a TOML display-name directory.
//
//	[users]
//	"1001" = "alice"
//	"1002" = "bob"
func LoadUsers(path string) (StaticResolver, error) {
	var doc struct {
		Users map[string]string `toml:"users"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("loading users from %s: %w", path, err)
	}
	return StaticResolver(doc.Users), nil
}
