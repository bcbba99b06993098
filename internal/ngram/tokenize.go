package ngram

// cjkRange is one inclusive code-point range of the Unicode Unified
// Ideographs blocks used to detect CJK text for the kanji n-gram size.
type cjkRange struct{ lo, hi rune }

var cjkRanges = []cjkRange{
	{0x4E00, 0x9FFF},
	{0x3400, 0x4DBF},
	{0x20000, 0x2A6DF},
	{0x2A700, 0x2B73F},
	{0x2B740, 0x2B81F},
	{0xF900, 0xFAFF},
}

// IsCJK reports whether r falls in one of the CJK Unified Ideographs blocks
// used to classify hybrid-tokenization windows.
func IsCJK(r rune) bool {
	for _, rg := range cjkRanges {
		if r >= rg.lo && r <= rg.hi {
			return true
		}
	}
	return false
}

// Tokenize walks normalized text left to right and emits one token per code
// point position: a kanjiSize-window starting at each CJK code point, an
// ngramSize-window starting at each non-CJK code point, skipping any window
// that would straddle the end of input. Tokens are emitted
// lazily in input order and are NOT deduplicated — callers (C3's add_doc)
// own deduplication.
func Tokenize(normalized []byte, ngramSize, kanjiSize int, yield func(token string) bool) {
	runes := []rune(string(normalized))
	n := len(runes)
	for i := 0; i < n; i++ {
		size := ngramSize
		if IsCJK(runes[i]) {
			size = kanjiSize
		}
		if size <= 0 || i+size > n {
			continue
		}
		if !yield(string(runes[i : i+size])) {
			return
		}
	}
}

// TokenizeAll collects Tokenize's output into a slice, for callers that do
// not need streaming semantics.
func TokenizeAll(normalized []byte, ngramSize, kanjiSize int) []string {
	var out []string
	Tokenize(normalized, ngramSize, kanjiSize, func(tok string) bool {
		out = append(out, tok)
		return true
	})
	return out
}

// TokenizeSet collects the deduplicated token set, as C3's add_doc requires.
func TokenizeSet(normalized []byte, ngramSize, kanjiSize int) map[string]struct{} {
	set := make(map[string]struct{})
	Tokenize(normalized, ngramSize, kanjiSize, func(tok string) bool {
		set[tok] = struct{}{}
		return true
	})
	return set
}
