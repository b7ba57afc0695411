package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/paperqa/internal/document"
)

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestCompute_Format(t *testing.T) {
	h := Hasher{}
	assert.Equal(t, sha("paper.pdf|3|Cas9 cleaves DNA."), h.Compute("paper.pdf", 3, "Cas9 cleaves DNA."))
}

func TestCompute_Deterministic(t *testing.T) {
	h := Hasher{}
	a := h.Compute("a.pdf", 1, "same text")
	b := h.Compute("a.pdf", 1, "same text")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Equal(t, strings.ToLower(a), a)
}

func TestCompute_DistinguishesInputs(t *testing.T) {
	h := Hasher{}
	base := h.Compute("a.pdf", 1, "text")
	assert.NotEqual(t, base, h.Compute("b.pdf", 1, "text"))
	assert.NotEqual(t, base, h.Compute("a.pdf", 2, "text"))
	assert.NotEqual(t, base, h.Compute("a.pdf", 1, "text2"))
}

func TestCompute_LegacyPrefix(t *testing.T) {
	legacy := Hasher{PrefixChars: LegacyPrefixChars}
	head := strings.Repeat("x", 200)

	// Chunks sharing the first 200 characters collide under the legacy scheme.
	assert.Equal(t,
		legacy.Compute("a.pdf", 1, head+" tail one"),
		legacy.Compute("a.pdf", 1, head+" tail two"),
	)
	assert.Equal(t, sha("a.pdf|1|"+head), legacy.Compute("a.pdf", 1, head+"more"))

	full := Hasher{}
	assert.NotEqual(t,
		full.Compute("a.pdf", 1, head+" tail one"),
		full.Compute("a.pdf", 1, head+" tail two"),
	)
}

func TestCompute_PrefixCountsRunes(t *testing.T) {
	h := Hasher{PrefixChars: 3}
	assert.Equal(t, sha("a.pdf|1|Özg"), h.Compute("a.pdf", 1, "Özgür"))
	assert.Equal(t, sha("a.pdf|1|ab"), h.Compute("a.pdf", 1, "ab"))
}

func TestHasherChunk(t *testing.T) {
	h := Hasher{}
	c := document.Chunk{Text: "body", Metadata: document.Metadata{Source: "s.pdf", Page: 4}}
	assert.Equal(t, h.Compute("s.pdf", 4, "body"), h.Chunk(c))
}
