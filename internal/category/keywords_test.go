package category

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

func TestFromTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		tags  []string
		want  string
	}{
		{name: "politics from title", title: "Will Trump win Pennsylvania?", want: "Politics"},
		{name: "sports from tag", title: "Chiefs vs Eagles", tags: []string{"NFL"}, want: "Sports"},
		{name: "crypto", title: "Bitcoin above $100k on Friday?", want: "Crypto"},
		{name: "table order wins", title: "Will Trump tweet about Bitcoin?", want: "Politics"},
		{name: "fed keyword needs trailing space", title: "Fed cuts rates in March?", want: "Economics"},
		{name: "fed prefix alone does not match", title: "Federer to play Wimbledon?", tags: []string{"Grass"}, want: "Grass"},
		{name: "capitalized tag fallback", title: "Will it snow in Paris?", tags: []string{"weATHER"}, want: "Weather"},
		{name: "skips slash and short tags", title: "Will it snow in Paris?", tags: []string{"x", "a/b", "Snowfall"}, want: "Snowfall"},
		{name: "skips long tags", title: "Will it snow in Paris?", tags: []string{"an extremely long tag value"}, want: Miscellaneous},
		{name: "nothing matches", title: "Will it snow in Paris?", want: Miscellaneous},
		{name: "elon musk", title: "Will Elon Musk buy a football club?", want: "Sports"},
		{name: "tesla", title: "Tesla deliveries record?", want: "Elon Musk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromTitle(tt.title, tt.tags))
		})
	}
}

func TestClassifier_CustomRules(t *testing.T) {
	c := NewClassifier([]Rule{{Category: "Weather", Keywords: []string{"Snow", "Rain"}}})
	assert.Equal(t, "Weather", c.FromTitle("Will it SNOW in Paris?", nil))
	assert.Equal(t, Miscellaneous, c.FromTitle("Bitcoin to 100k?", nil))
}

func TestFromTags(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want string
	}{
		{name: "keyword inside tag", tags: []string{"US Elections"}, want: "Politics"},
		{name: "first matching tag decides", tags: []string{"Movies", "Crypto"}, want: "Entertainment"},
		{name: "case insensitive", tags: []string{"cryptocurrency"}, want: "Crypto"},
		{name: "falls back to first tag", tags: []string{"Weather", "Paris"}, want: "Weather"},
		{name: "no tags", want: domain.UncategorizedCategory},
		{name: "blank tags", tags: []string{" "}, want: domain.UncategorizedCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromTags(tt.tags))
		})
	}
}
