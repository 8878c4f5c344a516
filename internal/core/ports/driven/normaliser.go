package driven

import "context"

// Normaliser turns raw document bytes into plain text.
// Format parsing beyond the bundled plaintext and markdown handling is an
// external concern; a normaliser for richer formats plugs in here.
type Normaliser interface {
	// SupportedExtensions returns the file extensions this normaliser
	// handles, lower-case with leading dot.
	SupportedExtensions() []string

	// Normalise extracts text content from raw bytes.
	Normalise(ctx context.Context, uri string, raw []byte) (string, error)
}
