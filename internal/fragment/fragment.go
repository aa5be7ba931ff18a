// Package fragment splits a raw model reply into chat-bubble fragments.
package fragment

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/exsim/internal/model"
)

const (
	DefaultMinSize           = 12
	DefaultMergeSize         = 160
	DefaultSentenceSplitSize = 80
)

// Options configures fragmentation behavior. Sizes are in runes.
type Options struct {
	// MinSize is the shortest reply that is split at all.
	MinSize int
	// MergeSize caps a merged bubble for personas that prefer long messages.
	MergeSize int
	// SentenceSplitSize is the paragraph length above which anxious personas
	// break on sentence ends.
	SentenceSplitSize int
}

// DefaultOptions returns default fragmentation options.
func DefaultOptions() Options {
	return Options{
		MinSize:           DefaultMinSize,
		MergeSize:         DefaultMergeSize,
		SentenceSplitSize: DefaultSentenceSplitSize,
	}
}

var (
	paragraphSep = regexp.MustCompile(`[ \t]*\n[ \t]*\n\s*`)
	lineSep      = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	sentenceEnd  = regexp.MustCompile(`[.!?…]+["')\]]*(\s+)`)
)

// Split cuts raw into an ordered, non-empty sequence of fragments.
// Concatenating Text+Sep of the result always yields raw. Delays are left
// zero; the pacing package fills them in.
func Split(raw string, style model.AttachmentStyle, opts Options) []model.Fragment {
	if opts == (Options{}) {
		opts = DefaultOptions()
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || utf8.RuneCountInString(trimmed) < opts.MinSize {
		return []model.Fragment{{Text: raw}}
	}

	// Blank lines always separate bubbles
	pieces := splitOn(raw, paragraphSep, 0)

	switch style {
	case model.StyleAnxious:
		pieces = refine(pieces, lineSep, 0, 0)
		pieces = refine(pieces, sentenceEnd, 1, opts.SentenceSplitSize)
	case model.StyleDisorganized:
		pieces = refine(pieces, lineSep, 0, 0)
	case model.StyleSecure:
		pieces = mergePieces(pieces, opts.MergeSize)
	}

	pieces = foldBlank(pieces)

	frags := make([]model.Fragment, len(pieces))
	for i, p := range pieces {
		frags[i] = model.Fragment{Text: p.text, Sep: p.sep}
	}
	return frags
}

// piece is an intermediate slice of the reply and the separator after it.
type piece struct {
	text string
	sep  string
}

// splitOn cuts text at every match of re. When group > 0 only that submatch
// is treated as the separator; the rest of the match stays with the text.
func splitOn(text string, re *regexp.Regexp, group int) []piece {
	var out []piece
	last := 0
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2*group], m[2*group+1]
		if start < 0 || start < last {
			continue
		}
		out = append(out, piece{text: text[last:start], sep: text[start:end]})
		last = end
	}
	return append(out, piece{text: text[last:]})
}

// refine splits each piece further. Pieces of at most minLen runes are kept
// whole; minLen 0 splits everything.
func refine(pieces []piece, re *regexp.Regexp, group, minLen int) []piece {
	var out []piece
	for _, p := range pieces {
		if minLen > 0 && utf8.RuneCountInString(p.text) <= minLen {
			out = append(out, p)
			continue
		}
		sub := splitOn(p.text, re, group)
		sub[len(sub)-1].sep = p.sep
		out = append(out, sub...)
	}
	return out
}

// mergePieces combines adjacent pieces while the result fits in maxLen.
func mergePieces(pieces []piece, maxLen int) []piece {
	if len(pieces) == 0 {
		return pieces
	}
	var out []piece
	accum := pieces[0]
	for _, p := range pieces[1:] {
		combined := accum.text + accum.sep + p.text
		if strings.TrimSpace(accum.text) == "" || utf8.RuneCountInString(strings.TrimSpace(combined)) <= maxLen {
			accum = piece{text: combined, sep: p.sep}
			continue
		}
		out = append(out, accum)
		accum = p
	}
	return append(out, accum)
}

// foldBlank folds whitespace-only pieces into their neighbours so a
// non-empty reply never produces an empty bubble.
func foldBlank(pieces []piece) []piece {
	var out []piece
	var carry string
	for _, p := range pieces {
		if strings.TrimSpace(p.text) == "" {
			if len(out) > 0 {
				out[len(out)-1].sep += p.text + p.sep
			} else {
				carry += p.text + p.sep
			}
			continue
		}
		p.text = carry + p.text
		carry = ""
		out = append(out, p)
	}
	if len(out) == 0 {
		return []piece{{text: carry}}
	}
	return out
}
