// Package mcp merges MCP server definitions from the canonical config
// document into provider config documents.
//
// Server definitions are opaque: documents round-trip through
// json.RawMessage so unknown shapes and unrelated top-level keys are
// never lost or reordered into a typed struct.
package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/starford/raido/internal/fsutil"
)

// DocumentName is the config document carrying the mcpServers mapping
// inside every config directory.
const DocumentName = ".claude.json"

const serversKey = "mcpServers"

type document map[string]json.RawMessage

type serverSet map[string]json.RawMessage

// readDocument loads a JSON document, returning an empty one for a
// missing or unparseable file. A document holding JSON null unmarshals
// into a nil map without error; it is normalized so callers can always
// assign keys. exists reports whether the file was read and parsed.
func readDocument(path string) (doc document, exists bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document{}, false
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, false
	}
	if doc == nil {
		doc = document{}
	}
	return doc, true
}

func (d document) servers() serverSet {
	raw, ok := d[serversKey]
	if !ok {
		return serverSet{}
	}
	var set serverSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return serverSet{}
	}
	return set
}

// canonical marshals a server set with sorted keys, the comparison form
// used to decide whether a write is needed.
func canonical(set serverSet) []byte {
	b, _ := json.Marshal(set)
	return b
}

func writeDocument(path string, doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("mcp: marshal %s: %w", path, err)
	}
	if err := fsutil.WriteAtomic(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("mcp: write %s: %w", path, err)
	}
	return nil
}

// MergeServers merges the mcpServers mapping from sourceFile into the
// document inside targetDir. It reports whether the target was written.
//
// Non-forced merges union the two sets with source winning on key
// collisions; target-only entries survive. Forced merges replace the
// target set with the source set exactly, dropping target-only entries.
// No-op cases: target directory equals the source's directory, source
// document missing, or source carries no server entries. An unreadable
// or unparseable target document is treated as empty, never fatal.
func MergeServers(sourceFile, targetDir string, force bool) (bool, error) {
	if filepath.Clean(filepath.Dir(sourceFile)) == filepath.Clean(targetDir) {
		return false, nil
	}

	sourceDoc, ok := readDocument(sourceFile)
	if !ok {
		return false, nil
	}
	source := sourceDoc.servers()
	if len(source) == 0 {
		return false, nil
	}

	targetFile := filepath.Join(targetDir, DocumentName)
	targetDoc, _ := readDocument(targetFile)
	target := targetDoc.servers()

	var merged serverSet
	if force {
		merged = source
	} else {
		merged = lo.Assign(target, source)
	}

	if bytes.Equal(canonical(merged), canonical(target)) {
		return false, nil
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return false, fmt.Errorf("mcp: marshal servers: %w", err)
	}
	targetDoc[serversKey] = raw
	if err := writeDocument(targetFile, targetDoc); err != nil {
		return false, err
	}
	return true, nil
}

const oauthKey = "oauthAccount"

// StripOAuth removes the OAuth account block from the document in
// targetDir, if present. API-key providers must not carry stale OAuth
// credentials: the assistant binary prefers them over a supplied API
// token. Reports whether the document was rewritten.
func StripOAuth(targetDir string) (bool, error) {
	targetFile := filepath.Join(targetDir, DocumentName)
	data, err := os.ReadFile(targetFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("mcp: read %s: %w", targetFile, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, nil
	}
	if _, ok := doc[oauthKey]; !ok {
		return false, nil
	}
	delete(doc, oauthKey)
	if err := writeDocument(targetFile, doc); err != nil {
		return false, err
	}
	return true, nil
}
