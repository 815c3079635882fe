package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"newsbundle/internal/clustering"
	"newsbundle/internal/core"
)

func TestGenerateTopicLabel(t *testing.T) {
	tests := []struct {
		name   string
		titles []string
		want   string
	}{
		{"empty", nil, "Empty Cluster"},
		{"shared word", []string{"Rates rise again", "Fed holds rates", "Markets react"}, "Rates & Related"},
		{"tie alphabetical", []string{"Apple earnings beat", "Apple earnings miss"}, "Apple & Related"},
		{"no shared word", []string{"Volcano erupts", "Storm approaches"}, "Volcano erupts"},
		{"long title truncated", []string{"An extraordinarily long headline about everything", "Other"}, "An extraordinarily long headline abou..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var articles []core.Article
			for _, title := range tt.titles {
				articles = append(articles, core.Article{Title: title})
			}
			assert.Equal(t, tt.want, generateTopicLabel(articles))
		})
	}
}

func TestExtractKeywordsFromArticles(t *testing.T) {
	articles := []core.Article{
		{Title: "Climate summit opens", CleanedText: "Leaders gather for climate talks"},
		{Title: "Climate deal reached", CleanedText: "Negotiators agree on climate finance"},
	}
	keywords := extractKeywordsFromArticles(articles)
	assert.Len(t, keywords, 5)
	assert.Equal(t, "climate", keywords[0])
	assert.NotContains(t, keywords, "for")
}

func TestExtractWords(t *testing.T) {
	assert.Equal(t, []string{"Hello", "world", "x"}, extractWords("Hello, world! 42x"))
	assert.Empty(t, extractWords("123 ..."))
}

func TestBuildTopicsNoise(t *testing.T) {
	articles := []core.Article{
		{ID: "a", Title: "One", Embedding: []float64{0, 0}, TokenCount: core.TokenCount(3)},
		{ID: "b", Title: "Two", Embedding: []float64{2, 2}, TokenCount: core.TokenCount(4)},
		{ID: "c", Title: "Three", Embedding: []float64{9, 9}, TokenCount: core.TokenCount(5)},
	}
	result := &clustering.Result{
		Labels:        []int{4, 4, clustering.Noise},
		Probabilities: []float64{1, 0.5, 0},
	}

	topics, noise := buildTopics(articles, result)
	assert.Equal(t, []string{"c"}, noise)
	if assert.Len(t, topics, 1) {
		assert.Equal(t, 4, topics[0].ClusterLabel)
		assert.Equal(t, []string{"a", "b"}, topics[0].ArticleIDs)
		assert.Equal(t, []float64{1, 1}, topics[0].Centroid)
		assert.Equal(t, 7, topics[0].TokenCount)
		assert.InDelta(t, 0.75, topics[0].MeanProbability, 1e-12)
	}
}
