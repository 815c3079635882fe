package core

import "time"

// maxEmbeddingTextLen is a conservative byte limit for gemini-embedding-001
const maxEmbeddingTextLen = 8000

// Article is a news article entering the clustering stage.
type Article struct {
	ID          string    `json:"id"`                    // Unique identifier for the article
	Title       string    `json:"title"`                 // Title of the article
	CleanedText string    `json:"text"`                  // Cleaned and parsed text content
	URL         string    `json:"url,omitempty"`         // Source URL, informational only
	DateFetched time.Time `json:"date_fetched,omitzero"` // Timestamp when the article was fetched
	Embedding   []float64 `json:"embedding,omitempty"`   // Vector embedding, generated when absent
	TokenCount  *int      `json:"token_count,omitempty"` // Token count, estimated when absent or negative
}

// TokenCount returns a pointer to n for Article.TokenCount
func TokenCount(n int) *int { return &n }

// HasTokenCount reports whether the article carries a usable token count; zero is usable
func (a Article) HasTokenCount() bool {
	return a.TokenCount != nil && *a.TokenCount >= 0
}

// Tokens returns the article's token count, 0 when it has none
func (a Article) Tokens() int {
	if !a.HasTokenCount() {
		return 0
	}
	return *a.TokenCount
}

// EmbeddingText combines title and body the way embeddings are generated,
// truncated on a rune boundary to the embedding model limit.
func (a Article) EmbeddingText() string {
	text := a.Title + "\n\n" + a.CleanedText
	if len(text) <= maxEmbeddingTextLen {
		return text
	}
	cut := maxEmbeddingTextLen
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// TokenText is the text whose tokens count against a cluster budget
func (a Article) TokenText() string {
	return a.Title + "\n" + a.CleanedText
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// TopicCluster represents a cluster of articles with similar topics.
type TopicCluster struct {
	ID              string    `json:"id"`               // Unique identifier for the cluster
	Label           string    `json:"label"`            // Human-readable topic label
	ClusterLabel    int       `json:"cluster_label"`    // Engine label this cluster was built from
	Keywords        []string  `json:"keywords"`         // Key terms associated with this topic
	ArticleIDs      []string  `json:"article_ids"`      // IDs of articles in this cluster
	Centroid        []float64 `json:"centroid"`         // Cluster centroid in embedding space
	TokenCount      int       `json:"token_count"`      // Sum of member token counts
	MeanProbability float64   `json:"mean_probability"` // Mean membership probability
	CreatedAt       time.Time `json:"created_at"`       // When the cluster was created
}
