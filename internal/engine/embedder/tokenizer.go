package embedder

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	defaultMaxSeqLen = 256
	// maxWordRunes is the longest word WordPiece will try to split; longer
	// words become [UNK].
	maxWordRunes = 200
)

// tokenized holds a batch ready for inference. All slices are flat
// [batchSize * seqLen].
type tokenized struct {
	inputIDs      []int64
	attentionMask []int64
	tokenTypeIDs  []int64
	batchSize     int64
	seqLen        int64
}

// tokenizer performs BERT-style (uncased) WordPiece tokenization.
type tokenizer struct {
	vocab     *vocab
	maxSeqLen int
}

func newTokenizer(vocabPath string, maxSeqLen int) (*tokenizer, error) {
	v, err := loadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	if maxSeqLen <= 2 {
		maxSeqLen = defaultMaxSeqLen
	}
	return &tokenizer{vocab: v, maxSeqLen: maxSeqLen}, nil
}

// encode returns [CLS] tokens... [SEP] ids, truncated to maxSeqLen.
func (t *tokenizer) encode(text string) []int64 {
	pieces := t.wordpiece(basicTokenize(text))
	if limit := t.maxSeqLen - 2; len(pieces) > limit {
		pieces = pieces[:limit]
	}
	ids := make([]int64, 0, len(pieces)+2)
	ids = append(ids, t.vocab.clsID)
	for _, p := range pieces {
		ids = append(ids, t.vocab.lookup(p))
	}
	return append(ids, t.vocab.sepID)
}

// tokenizeBatch encodes texts and pads them to the longest sequence in the
// batch.
func (t *tokenizer) tokenizeBatch(texts []string) tokenized {
	if len(texts) == 0 {
		return tokenized{}
	}
	seqs := make([][]int64, len(texts))
	seqLen := 0
	for i, text := range texts {
		seqs[i] = t.encode(text)
		seqLen = max(seqLen, len(seqs[i]))
	}

	n := len(texts) * seqLen
	out := tokenized{
		inputIDs:      make([]int64, n),
		attentionMask: make([]int64, n),
		tokenTypeIDs:  make([]int64, n),
		batchSize:     int64(len(texts)),
		seqLen:        int64(seqLen),
	}
	for i, ids := range seqs {
		row := i * seqLen
		for j, id := range ids {
			out.inputIDs[row+j] = id
			out.attentionMask[row+j] = 1
		}
		for j := len(ids); j < seqLen; j++ {
			out.inputIDs[row+j] = t.vocab.padID
		}
	}
	return out
}

// wordpiece splits basic tokens into vocabulary subwords, greedily taking
// the longest known prefix. A word with no decomposition becomes [UNK].
func (t *tokenizer) wordpiece(words []string) []string {
	var out []string
	for _, w := range words {
		runes := []rune(w)
		if len(runes) > maxWordRunes {
			out = append(out, "[UNK]")
			continue
		}
		var pieces []string
		for start := 0; start < len(runes); {
			end := len(runes)
			for ; end > start; end-- {
				sub := string(runes[start:end])
				if start > 0 {
					sub = "##" + sub
				}
				if t.vocab.contains(sub) {
					pieces = append(pieces, sub)
					break
				}
			}
			if end == start {
				pieces = []string{"[UNK]"}
				break
			}
			start = end
		}
		out = append(out, pieces...)
	}
	return out
}

// basicTokenize cleans, lowercases and strips accents from text, then
// splits it on whitespace, punctuation and CJK ideographs.
func basicTokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(strings.ToLower(text)) {
		switch {
		case r == 0 || r == 0xFFFD || isControl(r) || unicode.Is(unicode.Mn, r):
		case isWhitespace(r):
			b.WriteByte(' ')
		case isPunctuation(r) || isCJK(r):
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

// isPunctuation treats all non-alphanumeric printable ASCII as punctuation,
// plus the Unicode punctuation categories.
func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r)
}
