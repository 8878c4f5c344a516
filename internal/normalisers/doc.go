// Package normalisers provides implementations of the Normaliser interface
// for the bundled document formats. Each normaliser knows how to extract
// text content from a family of file extensions.
//
// Richer format parsing (PDF, HTML extraction) is an external concern and
// plugs in through the same interface.
package normalisers
