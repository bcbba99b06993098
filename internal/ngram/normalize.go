// Package ngram implements the text normalizer and hybrid n-gram tokenizer.
package ngram

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// WidthMode selects how the width-folding normalization stage behaves.
type WidthMode uint8

const (
	WidthKeep WidthMode = iota
	WidthNarrow
	WidthWide
)

// NormalizeOptions mirrors the normalize contract:
// normalize(text, {nfkc, width, lower}) -> bytes.
type NormalizeOptions struct {
	NFKC  bool
	Width WidthMode
	Lower bool

	// ASCIIFallbackOnly simulates a "normalization library unavailable"
	// contingency: only the Lower stage runs. golang.org/x/text is always
	// present here, so this flag is the documented stand-in for that
	// condition (see DESIGN.md).
	ASCIIFallbackOnly bool
}

// Normalize produces the canonical byte sequence used as tokenizer input.
func Normalize(text string, opts NormalizeOptions) []byte {
	if opts.ASCIIFallbackOnly {
		if opts.Lower {
			text = strings.ToLower(text)
		}
		return []byte(text)
	}

	s := text
	if opts.NFKC {
		s = norm.NFKC.String(s)
	}
	switch opts.Width {
	case WidthNarrow:
		s = width.Narrow.String(s)
	case WidthWide:
		s = width.Widen.String(s)
	}
	if opts.Lower {
		s = strings.ToLower(s)
	}
	return []byte(s)
}
