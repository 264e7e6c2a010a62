package mcpxconfig

import (
	"fmt"

	optional "github.com/TBXark/optional-go"
	"github.com/go-sphere/confstore"
	"github.com/go-sphere/confstore/codec"
	"github.com/go-sphere/confstore/provider/file"
)

// fileConfig is the on-disk JSON shape for a FileSource. Spec is a sealed
// interface and cannot be unmarshaled directly, so each upstream is tagged
// by transport and carries both HTTP and stdio fields, only one set of which
// is populated.
type fileConfig struct {
	GatewayPort   int                `json:"gateway_port"`
	LocalTokenRef string             `json:"local_token_ref"`
	Upstreams     []fileUpstreamSpec `json:"upstreams"`
}

type fileUpstreamSpec struct {
	Name      string            `json:"name"`
	Transport string            `json:"transport"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
}

// FileSource is a Source backed by a JSON configuration file, reloaded via
// confstore on every Snapshot() call rather than cached, so additions,
// removals, and edits to upstreams take effect without a daemon restart.
type FileSource struct {
	Path string
}

// NewFileSource builds a FileSource reading from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Snapshot() (Snapshot, error) {
	cfg, err := confstore.Load[fileConfig](file.New(f.Path), codec.JsonCodec())
	if err != nil {
		return Snapshot{}, fmt.Errorf("mcpxconfig: load %s: %w", f.Path, err)
	}
	return cfg.toSnapshot()
}

func (c fileConfig) toSnapshot() (Snapshot, error) {
	entries := make([]UpstreamEntry, 0, len(c.Upstreams))
	for _, u := range c.Upstreams {
		if err := ValidateName(u.Name); err != nil {
			return Snapshot{}, err
		}
		var spec Spec
		switch Transport(u.Transport) {
		case TransportHTTP:
			spec = HTTPSpec{URL: u.URL, Headers: u.Headers}
		case TransportStdio:
			s := StdioSpec{Command: u.Command, Args: u.Args, Env: u.Env}
			if u.Cwd != "" {
				s.Cwd = optional.NewField(u.Cwd)
			}
			spec = s
		default:
			return Snapshot{}, fmt.Errorf("mcpxconfig: upstream %q has unknown transport %q", u.Name, u.Transport)
		}
		entries = append(entries, UpstreamEntry{Name: u.Name, Spec: spec})
	}
	return Snapshot{GatewayPort: c.GatewayPort, LocalTokenRef: c.LocalTokenRef, Upstreams: entries}, nil
}
