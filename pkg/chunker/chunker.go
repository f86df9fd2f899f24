// Package chunker splits document text into ordered, token-bounded pieces.
// Splitting prefers paragraph boundaries, falls back to sentence boundaries
// for oversized paragraphs, and hard-cuts token runs that have no boundary
// at all. Identical input and configuration always produce identical
// pieces; downstream idempotency checks hash piece content.
package chunker

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Piece is one chunk of a document. StartChar/EndChar are byte offsets
// into the normalized source text; consecutive pieces overlap by the
// configured overlap, so spans tile the document without gaps.
type Piece struct {
	Index      int
	Content    string
	StartChar  int
	EndChar    int
	TokenCount int
}

// Chunker produces pieces between MinTokens and MaxTokens where the text
// allows it, with OverlapTokens of trailing context repeated at the head
// of the next piece.
type Chunker struct {
	minTokens     int
	maxTokens     int
	overlapTokens int

	enc *tiktoken.Tiktoken
}

// New creates a Chunker using the named tiktoken encoding.
func New(encoder string, minTokens, maxTokens, overlapTokens int) (*Chunker, error) {
	enc, err := tiktoken.GetEncoding(encoder)
	if err != nil {
		return nil, err
	}
	return &Chunker{
		minTokens:     minTokens,
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
		enc:           enc,
	}, nil
}

func (c *Chunker) countTokens(s string) int {
	return len(c.enc.Encode(s, nil, nil))
}

// Split chunks text into pieces. Empty or whitespace-only input yields no
// pieces. A single block denser than MaxTokens is cut at token boundaries
// rather than failing.
func (c *Chunker) Split(text string) ([]Piece, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	blocks := c.buildBlocks(text)
	if len(blocks) == 0 {
		return nil, nil
	}

	var (
		pieces  []Piece
		current strings.Builder
		tokens  int
		start   int
	)

	flush := func() {
		content := strings.TrimSpace(current.String())
		if content == "" {
			return
		}
		end := start + len(current.String())
		pieces = append(pieces, Piece{
			Index:      len(pieces),
			Content:    content,
			StartChar:  start,
			EndChar:    end,
			TokenCount: c.countTokens(content),
		})

		overlap := c.overlapTail(content)
		start = end - len(overlap)
		current.Reset()
		if overlap != "" {
			current.WriteString(overlap)
			tokens = c.countTokens(overlap)
		} else {
			tokens = 0
		}
	}

	for _, block := range blocks {
		blockTokens := c.countTokens(block)
		if current.Len() > 0 && tokens+blockTokens > c.maxTokens {
			flush()
			if tokens+blockTokens > c.maxTokens {
				// The carried overlap alone would blow the cap; drop it.
				start += current.Len()
				current.Reset()
				tokens = 0
			}
		}
		if current.Len() > 0 {
			// Count the separator too so the budget stays honest.
			blockTokens = c.countTokens("\n\n" + block)
			current.WriteString("\n\n")
		}
		current.WriteString(block)
		tokens += blockTokens
	}
	flush()

	return c.mergeSmallTail(pieces), nil
}

// mergeSmallTail folds a final piece below the token floor back into its
// predecessor, provided the merged piece still respects the maximum.
func (c *Chunker) mergeSmallTail(pieces []Piece) []Piece {
	if len(pieces) < 2 {
		return pieces
	}
	last := pieces[len(pieces)-1]
	if last.TokenCount >= c.minTokens {
		return pieces
	}
	prev := &pieces[len(pieces)-2]

	// Strip the overlap the tail inherited from its predecessor so the
	// merge doesn't duplicate it.
	remainder := strings.TrimSpace(strings.TrimPrefix(last.Content, c.overlapTail(prev.Content)))
	if remainder == "" {
		return pieces[:len(pieces)-1]
	}

	merged := prev.Content + "\n\n" + remainder
	mergedTokens := c.countTokens(merged)
	if mergedTokens > c.maxTokens {
		return pieces
	}

	prev.Content = merged
	prev.EndChar = last.EndChar
	prev.TokenCount = mergedTokens
	return pieces[:len(pieces)-1]
}

// buildBlocks splits text into paragraph-sized blocks none of which
// exceeds the token maximum. Oversized paragraphs are broken at sentence
// boundaries, and oversized sentences at raw token boundaries.
func (c *Chunker) buildBlocks(text string) []string {
	var blocks []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if c.countTokens(para) <= c.maxTokens {
			blocks = append(blocks, para)
			continue
		}
		for _, sentence := range splitIntoSentences(para) {
			if c.countTokens(sentence) <= c.maxTokens {
				blocks = append(blocks, sentence)
				continue
			}
			blocks = append(blocks, c.hardCut(sentence)...)
		}
	}
	return blocks
}

// hardCut slices a boundary-less run into windows of at most maxTokens
// tokens.
func (c *Chunker) hardCut(s string) []string {
	ids := c.enc.Encode(s, nil, nil)
	var out []string
	for len(ids) > 0 {
		n := c.maxTokens
		if n > len(ids) {
			n = len(ids)
		}
		segment := strings.TrimSpace(c.enc.Decode(ids[:n]))
		if segment != "" {
			out = append(out, segment)
		}
		ids = ids[n:]
	}
	return out
}

// overlapTail returns the trailing sentences of content that fit within
// the overlap budget, or the raw token tail when even the last sentence
// is too large.
func (c *Chunker) overlapTail(content string) string {
	if c.overlapTokens <= 0 {
		return ""
	}
	if c.countTokens(content) <= c.overlapTokens {
		return content
	}

	sentences := splitIntoSentences(content)
	if len(sentences) > 1 {
		var tail string
		for i := len(sentences) - 1; i >= 0; i-- {
			candidate := sentences[i]
			if tail != "" {
				candidate = candidate + " " + tail
			}
			if c.countTokens(candidate) > c.overlapTokens {
				break
			}
			tail = candidate
		}
		if tail != "" {
			return tail
		}
	}

	ids := c.enc.Encode(content, nil, nil)
	return strings.TrimSpace(c.enc.Decode(ids[len(ids)-c.overlapTokens:]))
}

// splitIntoSentences breaks text at sentence-ending punctuation followed
// by whitespace, and at line breaks. Trailing fragments without a
// terminator are kept as their own sentence.
func splitIntoSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\t' || runes[i+1] == '\n' {
				flush()
			}
		}
	}
	flush()

	return sentences
}
