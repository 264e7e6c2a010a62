package catalog

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/kwonye/mcpx/pkg/gatewayerr"
	"github.com/kwonye/mcpx/pkg/mcpxconfig"
	"github.com/kwonye/mcpx/pkg/namespace"
	"github.com/kwonye/mcpx/pkg/upstreamrouter"
)

// Merger is the CatalogMerger.
type Merger struct {
	Router *upstreamrouter.Router
}

// listOutcome holds one upstream's raw result or error from a */list fan-out.
type listOutcome struct {
	name string
	raw  json.RawMessage
	err  error
}

// New builds a Merger.
func New(router *upstreamrouter.Router) *Merger {
	return &Merger{Router: router}
}

// List executes method (one of tools/list, resources/list, prompts/list)
// across every upstream in scope, namespacing item names/uris unless scope
// is exactly one upstream (flat mode). scopeUpstream, if non-empty, narrows
// scope to that single upstream.
func (m *Merger) List(ctx context.Context, method string, snapshot mcpxconfig.Snapshot, scopeUpstream string) (json.RawMessage, error) {
	upstreams, err := scopedUpstreams(snapshot, scopeUpstream)
	if err != nil {
		return nil, err
	}

	results := make([]listOutcome, len(upstreams))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range upstreams {
		i, u := i, u
		results[i].name = u.Name
		g.Go(func() error {
			raw, err := m.Router.Call(gctx, u.Name, u.Spec, method, float64(1), nil, "")
			results[i].raw = raw
			results[i].err = err
			return nil
		})
	}
	_ = g.Wait()

	flat := len(upstreams) == 1
	if flat && results[0].err != nil {
		if _, ok := gatewayerr.IsAuthChallenge(results[0].err); ok {
			return nil, results[0].err
		}
	}

	return mergeResults(method, results, flat)
}

func scopedUpstreams(snapshot mcpxconfig.Snapshot, scopeUpstream string) ([]mcpxconfig.UpstreamEntry, error) {
	if scopeUpstream == "" {
		return snapshot.Upstreams, nil
	}
	entry, ok := snapshot.Lookup(scopeUpstream)
	if !ok {
		return nil, gatewayerr.UnknownUpstreamScope(scopeUpstream)
	}
	return []mcpxconfig.UpstreamEntry{entry}, nil
}

func mergeResults(method string, results []listOutcome, flat bool) (json.RawMessage, error) {
	switch method {
	case "tools/list":
		return mergeItems(results, flat, "tools", nameRewriter)
	case "prompts/list":
		return mergeItems(results, flat, "prompts", nameRewriter)
	case "resources/list":
		return mergeResources(results, flat)
	default:
		return nil, gatewayerr.UnknownMethod(method)
	}
}

type rewriter func(server string, item map[string]any, flat bool)

func nameRewriter(server string, item map[string]any, flat bool) {
	if name, ok := item["name"].(string); ok {
		item["name"] = namespace.ToolName(server, name, flat)
	}
}

func mergeItems(results []listOutcome, flat bool, field string, rewrite rewriter) (json.RawMessage, error) {
	merged := make([]any, 0)
	for _, r := range results {
		if r.err != nil || len(r.raw) == 0 {
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal(r.raw, &decoded); err != nil {
			continue
		}
		items, _ := decoded[field].([]any)
		for _, it := range items {
			obj, ok := it.(map[string]any)
			if !ok {
				continue
			}
			rewrite(r.name, obj, flat)
			merged = append(merged, obj)
		}
	}
	return json.Marshal(map[string]any{field: merged})
}

func mergeResources(results []listOutcome, flat bool) (json.RawMessage, error) {
	resources := make([]any, 0)
	templates := make([]any, 0)
	for _, r := range results {
		if r.err != nil || len(r.raw) == 0 {
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal(r.raw, &decoded); err != nil {
			continue
		}
		if items, ok := decoded["resources"].([]any); ok {
			for _, it := range items {
				obj, ok := it.(map[string]any)
				if !ok {
					continue
				}
				if uri, ok := obj["uri"].(string); ok {
					obj["uri"] = namespace.ResourceURI(r.name, uri, flat)
				}
				resources = append(resources, obj)
			}
		}
		if items, ok := decoded["resourceTemplates"].([]any); ok {
			for _, it := range items {
				obj, ok := it.(map[string]any)
				if !ok {
					continue
				}
				if uri, ok := obj["uriTemplate"].(string); ok {
					obj["uriTemplate"] = namespace.ResourceURI(r.name, uri, flat)
				}
				templates = append(templates, obj)
			}
		}
	}
	out := map[string]any{"resources": resources}
	if len(templates) > 0 {
		out["resourceTemplates"] = templates
	}
	return json.Marshal(out)
}
