package mcpxconfig

// UpstreamEntry pairs a configured upstream name with its specification.
type UpstreamEntry struct {
	Name string
	Spec Spec
}

// Snapshot is a read-only view of the gateway's configuration as of one
// inbound request. The core never caches a Snapshot across requests; a
// fresh one is obtained at the start of every dispatch (see Source).
type Snapshot struct {
	GatewayPort   int
	LocalTokenRef string
	Upstreams     []UpstreamEntry
}

// Lookup returns the entry for name, preserving configuration order
// elsewhere (this is a point lookup only).
func (s Snapshot) Lookup(name string) (UpstreamEntry, bool) {
	for _, u := range s.Upstreams {
		if u.Name == name {
			return u, true
		}
	}
	return UpstreamEntry{}, false
}

// Names returns the configured upstream names in configuration order.
func (s Snapshot) Names() []string {
	names := make([]string, len(s.Upstreams))
	for i, u := range s.Upstreams {
		names[i] = u.Name
	}
	return names
}

// Fingerprints maps each configured upstream name to Fingerprint(spec),
// for callers (such as stdiopool.Pool.Reconcile) that need to detect both
// removed and changed upstreams in one pass.
func (s Snapshot) Fingerprints() map[string]string {
	out := make(map[string]string, len(s.Upstreams))
	for _, u := range s.Upstreams {
		out[u.Name] = Fingerprint(u.Spec)
	}
	return out
}

// Source produces the current configuration snapshot. Implementations are
// free to memoize internally (e.g. re-reading a file only when its mtime
// changes) but must reflect additions/removals without requiring a daemon
// restart, and must return a snapshot that is internally consistent for the
// scope of one call.
type Source interface {
	Snapshot() (Snapshot, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func() (Snapshot, error)

func (f SourceFunc) Snapshot() (Snapshot, error) { return f() }

// Static returns a Source that always serves the same snapshot, useful for
// tests and for configurations that genuinely never change at runtime.
func Static(snap Snapshot) Source {
	return SourceFunc(func() (Snapshot, error) { return snap, nil })
}
