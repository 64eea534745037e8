package cluster

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	nonWord   = regexp.MustCompile(`[^a-z0-9 ]`)
	stopwords = map[string]struct{}{
		"will": {}, "the": {}, "a": {}, "in": {}, "by": {}, "of": {}, "on": {}, "to": {},
		"for": {}, "with": {}, "be": {}, "is": {}, "at": {}, "win": {}, "lose": {},
		"yes": {}, "no": {},
	}
)

// Label names cluster index from its member titles: the three most frequent
// words longer than two characters, excluding stopwords, upper-cased and
// joined with " / ". Equal counts order alphabetically. A cluster without
// such words is "CLUSTER n", n counting from one.
func Label(titles []string, index int) string {
	counts := make(map[string]int)
	for _, t := range titles {
		clean := nonWord.ReplaceAllString(strings.ToLower(t), "")
		for _, w := range strings.Split(clean, " ") {
			if len(w) <= 2 {
				continue
			}
			if _, stop := stopwords[w]; stop {
				continue
			}
			counts[w]++
		}
	}
	if len(counts) == 0 {
		return fmt.Sprintf("CLUSTER %d", index+1)
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > 3 {
		words = words[:3]
	}
	for i := range words {
		words[i] = strings.ToUpper(words[i])
	}
	return strings.Join(words, " / ")
}
