// Package signature computes content signatures for chunks and keeps the
// persistent index of signatures already written to the vector store.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/paperqa/internal/document"
)

// LegacyPrefixChars is the text prefix length used by indexes built before
// full-content signatures.
const LegacyPrefixChars = 200

// Hasher derives signatures. A zero PrefixChars hashes the full chunk text.
type Hasher struct {
	PrefixChars int
}

// Compute returns the lowercase hex sha256 of "source|page|head", where head
// is the first PrefixChars runes of text (all of it when PrefixChars is 0).
func (h Hasher) Compute(source string, page int, text string) string {
	head := text
	if h.PrefixChars > 0 {
		head = prefixRunes(text, h.PrefixChars)
	}

	var sb strings.Builder
	sb.Grow(len(source) + len(head) + 12)
	sb.WriteString(source)
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(page))
	sb.WriteByte('|')
	sb.WriteString(head)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Chunk returns the signature of a chunk.
func (h Hasher) Chunk(c document.Chunk) string {
	return h.Compute(c.Metadata.Source, c.Metadata.Page, c.Text)
}

func prefixRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
