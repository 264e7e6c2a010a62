package mcpxconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint produces a deterministic string over spec such that any
// semantic change (command, args order, env keys/values, headers, url, cwd)
// changes the result. It is referentially transparent: the same spec value
// always yields the same fingerprint, and is used only as a cache key, never
// compared across processes.
func Fingerprint(spec Spec) string {
	h := sha256.New()
	switch TransportOf(spec) {
	case TransportHTTP:
		v, _ := AsHTTP(spec)
		fmt.Fprintf(h, "http\x00url=%s\x00", v.URL)
		writeSortedMap(h, v.Headers)
	case TransportStdio:
		v, _ := AsStdio(spec)
		fmt.Fprintf(h, "stdio\x00command=%s\x00", v.Command)
		fmt.Fprintf(h, "args=%s\x00", strings.Join(v.Args, "\x1f"))
		if cwd, ok := v.Cwd.Get(); ok {
			fmt.Fprintf(h, "cwd=%s\x00", cwd)
		} else {
			fmt.Fprint(h, "cwd=\x00")
		}
		writeSortedMap(h, v.Env)
	default:
		fmt.Fprint(h, "unknown\x00")
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeSortedMap(h interface{ Write([]byte) (int, error) }, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\x1e", k, m[k])
	}
}
