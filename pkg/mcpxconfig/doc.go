// Package mcpxconfig declares the upstream specification and configuration
// snapshot types consumed by the gateway core. The core itself parses no
// files: a Snapshot is handed to it fresh on every request by a Source, so
// edits take effect without a daemon restart. FileSource is the one Source
// here that reads a JSON file, re-read on every Snapshot() call; nothing in
// this package watches the file.
package mcpxconfig
