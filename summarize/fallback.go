package summarize

import (
	"strings"

	"github.com/rowanlock/skein/model"
)

// FallbackDigest builds a minimal degraded digest from a raw sample,
// used after the summarization collaborator exhausts its retries. The
// digest is flagged so consumers can tell it apart from a real one.
func FallbackDigest(itemID string, raw model.RawContent, bounds model.DigestBounds) model.MarkerDigest {
	digest := model.MarkerDigest{
		SourceItemID: itemID,
		KeyFacts:     sampleLines(raw.Primary, bounds),
		Degraded:     true,
	}
	if len(digest.KeyFacts) == 0 && raw.Discussion != "" {
		digest.KeyFacts = sampleLines(raw.Discussion, bounds)
	}
	digest.RecountMarkers()
	return digest
}

// sampleLines takes the first non-empty lines of content, each clipped
// to the marker word bound, up to the list maximum.
func sampleLines(content string, bounds model.DigestBounds) []string {
	max := bounds.ListMax
	if max < 1 {
		max = 1
	}
	wordsMax := bounds.WordsMax
	if wordsMax < 1 {
		wordsMax = 50
	}

	var markers []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		words := strings.Fields(line)
		if len(words) > wordsMax {
			words = words[:wordsMax]
		}
		markers = append(markers, strings.Join(words, " "))
		if len(markers) >= max {
			break
		}
	}
	return markers
}
