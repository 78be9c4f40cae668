package explain

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// chunkTargetLen is the approximate chunk size the knowledge file is split
// into before retrieval, mirroring the splitter settings the knowledge base
// was originally indexed with.
const chunkTargetLen = 200

// KnowledgeBase is a small in-memory retrieval index over the risk
// explanation notes. Chunks are ranked by term overlap with the query —
// crude next to a vector store, but the corpus is a single curated file and
// the gateway only needs a few grounding sentences.
type KnowledgeBase struct {
	chunks []string
}

// LoadKnowledge reads and chunks the knowledge file.
func LoadKnowledge(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	return &KnowledgeBase{chunks: splitChunks(string(data))}, nil
}

// splitChunks breaks the document on blank lines, then merges consecutive
// paragraphs until each chunk approaches the target length.
func splitChunks(doc string) []string {
	paragraphs := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n\n")

	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > chunkTargetLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// Retrieve returns the top-k chunks ranked by shared-term count with the
// query. Ties keep document order so retrieval stays deterministic.
func (kb *KnowledgeBase) Retrieve(query string, k int) []string {
	queryTerms := terms(query)

	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, 0, len(kb.chunks))
	for i, chunk := range kb.chunks {
		s := overlap(queryTerms, terms(chunk))
		if s > 0 {
			ranked = append(ranked, scored{idx: i, score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	result := make([]string, k)
	for i := 0; i < k; i++ {
		result[i] = kb.chunks[ranked[i].idx]
	}
	return result
}

func terms(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) > 2 { // skip stop-word noise like "a", "of", "is"
			set[w] = true
		}
	}
	return set
}

func overlap(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}
