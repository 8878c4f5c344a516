// Package plaintext normalises plain text documents.
package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text documents. It is the fallback for any
// extension no other normaliser claims.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".txt", ".log", ".csv", ".json", ".yaml", ".toml", ".go", ".py"}
}

// Normalise extracts text content from raw bytes. Invalid UTF-8 is a
// malformed input: it can never ingest successfully, so it is rejected
// rather than retried.
func (n *Normaliser) Normalise(_ context.Context, _ string, raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", domain.ErrMalformedInput
	}

	content := string(raw)

	// Normalise line endings and strip trailing whitespace per line
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
