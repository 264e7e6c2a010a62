package mcpxconfig

import (
	"os"
	"strings"

	"github.com/kwonye/mcpx/pkg/gatewayerr"
)

const secretRefPrefix = "secret://"

// Store is the platform secret store, consulted only after the
// MCPX_SECRET_<name> environment variable override misses. There is no
// cross-platform OS keychain client in this corpus's retrieval pack, so the
// shipped implementation (MapStore) is a process-lifetime in-memory layer;
// a real keychain-backed Store is meant to be injected here by the caller
// that owns that out-of-scope surface.
type Store interface {
	Get(name string) (string, bool)
}

// MapStore is a Store backed by a plain map, useful for tests and for
// configurations that provision secrets at startup rather than from an OS
// keychain.
type MapStore map[string]string

func (m MapStore) Get(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Resolver resolves secret://name references to plaintext.
type Resolver struct {
	store Store
}

// NewResolver builds a Resolver backed by store. A nil store falls back to
// the environment-variable lookup only.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns v unchanged unless it is a secret://name reference, in
// which case it looks up MCPX_SECRET_<name> first, then the injected Store.
func (r *Resolver) Resolve(v string) (string, error) {
	name, ok := strings.CutPrefix(v, secretRefPrefix)
	if !ok {
		return v, nil
	}
	if env, ok := os.LookupEnv("MCPX_SECRET_" + name); ok {
		return env, nil
	}
	if r.store != nil {
		if val, ok := r.store.Get(name); ok {
			return val, nil
		}
	}
	return "", gatewayerr.SecretMissing(name)
}

// ResolveMap resolves every value in m, returning a new map with the same
// keys. Values that are not secret references pass through unchanged. Fails fast on the first
// missing secret.
func (r *Resolver) ResolveMap(m map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		resolved, err := r.Resolve(v)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}
