package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"newsbundle/internal/clustering"
	"newsbundle/internal/core"
)

// buildTopics converts engine labels into TopicClusters ordered by label.
// Noise articles are returned separately.
func buildTopics(articles []core.Article, result *clustering.Result) ([]core.TopicCluster, []string) {
	members := make(map[int][]int)
	var noiseIDs []string
	for i, label := range result.Labels {
		if label == clustering.Noise {
			noiseIDs = append(noiseIDs, articles[i].ID)
			continue
		}
		members[label] = append(members[label], i)
	}

	labels := make([]int, 0, len(members))
	for label := range members {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	now := time.Now().UTC()
	topics := make([]core.TopicCluster, 0, len(labels))
	for _, label := range labels {
		indices := members[label]

		clusterArticles := make([]core.Article, len(indices))
		articleIDs := make([]string, len(indices))
		tokenTotal := 0
		probSum := 0.0
		for j, idx := range indices {
			clusterArticles[j] = articles[idx]
			articleIDs[j] = articles[idx].ID
			tokenTotal += articles[idx].Tokens()
			probSum += result.Probabilities[idx]
		}

		topics = append(topics, core.TopicCluster{
			ID:              uuid.NewString(),
			Label:           generateTopicLabel(clusterArticles),
			ClusterLabel:    label,
			Keywords:        extractKeywordsFromArticles(clusterArticles),
			ArticleIDs:      articleIDs,
			Centroid:        calculateCentroid(clusterArticles),
			TokenCount:      tokenTotal,
			MeanProbability: probSum / float64(len(indices)),
			CreatedAt:       now,
		})
	}

	return topics, noiseIDs
}

// generateTopicLabel creates a human-readable label for a topic cluster
func generateTopicLabel(articles []core.Article) string {
	if len(articles) == 0 {
		return "Empty Cluster"
	}

	// Most common title word, ties broken alphabetically
	counts, forms := countWords(articles, func(a core.Article) string { return a.Title })
	var mostCommonWord string
	maxCount := 0
	for word, count := range counts {
		if count > maxCount || (count == maxCount && word < mostCommonWord) {
			maxCount = count
			mostCommonWord = word
		}
	}

	if mostCommonWord != "" && maxCount > 1 {
		return fmt.Sprintf("%s & Related", forms[mostCommonWord])
	}

	// Fallback: use first article title (truncated)
	firstTitle := articles[0].Title
	if len([]rune(firstTitle)) > 40 {
		firstTitle = string([]rune(firstTitle)[:37]) + "..."
	}
	return firstTitle
}

// extractKeywordsFromArticles returns the five most frequent words from
// titles and the first 200 bytes of each body.
func extractKeywordsFromArticles(articles []core.Article) []string {
	counts, _ := countWords(articles, func(a core.Article) string {
		text := a.CleanedText
		if len(text) > 200 {
			text = text[:200]
		}
		return a.Title + " " + text
	})

	type wordFreq struct {
		word  string
		count int
	}
	sortedWords := make([]wordFreq, 0, len(counts))
	for word, count := range counts {
		sortedWords = append(sortedWords, wordFreq{word, count})
	}
	sort.Slice(sortedWords, func(i, j int) bool {
		if sortedWords[i].count != sortedWords[j].count {
			return sortedWords[i].count > sortedWords[j].count
		}
		return sortedWords[i].word < sortedWords[j].word
	})

	var keywords []string
	for i, wf := range sortedWords {
		if i >= 5 {
			break
		}
		keywords = append(keywords, wf.word)
	}
	return keywords
}

// countWords counts lower-cased words longer than three letters. forms maps
// each counted word to the spelling it first appeared with.
func countWords(articles []core.Article, text func(core.Article) string) (counts map[string]int, forms map[string]string) {
	counts = make(map[string]int)
	forms = make(map[string]string)
	for _, article := range articles {
		for _, word := range extractWords(text(article)) {
			if len(word) <= 3 {
				continue
			}
			key := strings.ToLower(word)
			if _, ok := forms[key]; !ok {
				forms[key] = word
			}
			counts[key]++
		}
	}
	return counts, forms
}

// extractWords splits text into runs of ASCII letters
func extractWords(text string) []string {
	var words []string
	var word strings.Builder

	for _, char := range text {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') {
			word.WriteRune(char)
			continue
		}
		if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}
	if word.Len() > 0 {
		words = append(words, word.String())
	}

	return words
}

// calculateCentroid computes the average embedding for a set of articles
func calculateCentroid(articles []core.Article) []float64 {
	if len(articles) == 0 {
		return nil
	}

	centroid := make([]float64, len(articles[0].Embedding))
	for _, article := range articles {
		floats.Add(centroid, article.Embedding)
	}
	floats.Scale(1/float64(len(articles)), centroid)
	return centroid
}
