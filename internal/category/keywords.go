// Package category derives a display category for a market from its title
// and tags.
package category

import (
	"strings"
	"unicode/utf8"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// Miscellaneous is returned by FromTitle when nothing matches.
const Miscellaneous = "Miscellaneous"

// Rule maps a set of keywords to a category. Keywords are matched as
// case-insensitive substrings.
type Rule struct {
	Category string
	Keywords []string
}

// DefaultRules is the keyword table used by FromTitle. Order matters: the
// first rule with a hit wins.
func DefaultRules() []Rule {
	return []Rule{
		{Category: "Politics", Keywords: []string{
			"Politics", "Political", "Election", "Trump", "Harris", "Biden", "White House",
			"Senate", "House of Reps", "Congress", "Democrat", "Republican", "GOP",
			"Governor", "Mayor", "France", "Government",
		}},
		{Category: "Sports", Keywords: []string{
			"Sports", "NFL", "NBA", "MLB", "NHL", "Soccer", "Football", "Basketball",
			"Baseball", "Tennis", "Golf", "Super Bowl", "Champions League", "F1", "UFC",
		}},
		{Category: "Crypto", Keywords: []string{
			"Crypto", "Bitcoin", "Ethereum", "Solana", "Coinbase", "Binance", "DeFi", "NFT",
		}},
		{Category: "Entertainment", Keywords: []string{
			"Entertainment", "Movie", "TV", "Oscars", "Grammys", "Box Office", "Netflix",
			"Disney", "Celebrities",
		}},
		{Category: "Economics", Keywords: []string{
			"Economics", "Inflation", "Fed ", "Interest Rates", "GDP", "Recession",
			"Stock Market", "Economy", "Earnings", "Finance",
		}},
		{Category: "Tech", Keywords: []string{"Tech", "Technology", "Apple", "Google", "Meta", "Amazon", "Microsoft"}},
		{Category: "AI", Keywords: []string{"AI", "OpenAI", "ChatGPT", "Anthropic"}},
		{Category: "Science", Keywords: []string{"Science", "Space", "NASA", "SpaceX"}},
		{Category: "Health", Keywords: []string{"Health", "COVID", "FDA"}},
		{Category: "Culture", Keywords: []string{"Culture"}},
		{Category: "Business", Keywords: []string{"Business"}},
		{Category: "Elon Musk", Keywords: []string{"Elon Musk", "Tesla", "X.com", "Twitter"}},
	}
}

// tagRules is the coarser table applied to provider tags during backfill.
var tagRules = []Rule{
	{Category: "Politics", Keywords: []string{"Politics", "Political", "Election"}},
	{Category: "Sports", Keywords: []string{"Sports", "Sport"}},
	{Category: "Crypto", Keywords: []string{"Crypto", "Cryptocurrency", "Bitcoin", "Ethereum"}},
	{Category: "Entertainment", Keywords: []string{"Entertainment", "Movie", "TV"}},
	{Category: "Economics", Keywords: []string{"Economics", "Economic", "Finance", "Financial"}},
}

// Classifier assigns categories from a keyword table.
type Classifier struct {
	rules []Rule
}

// NewClassifier lower-cases the rule keywords once. A nil rules slice uses
// DefaultRules.
func NewClassifier(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: lowerRules(rules)}
}

func lowerRules(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		kw := make([]string, len(r.Keywords))
		for j, k := range r.Keywords {
			kw[j] = strings.ToLower(k)
		}
		out[i] = Rule{Category: r.Category, Keywords: kw}
	}
	return out
}

// FromTitle classifies a market by searching its title and tags against the
// keyword table. Without a hit, the first short single-segment tag is used,
// capitalized; failing that the market is Miscellaneous.
func (c *Classifier) FromTitle(title string, tags []string) string {
	text := strings.ToLower(title + " " + strings.Join(tags, " "))
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(text, kw) {
				return r.Category
			}
		}
	}

	for _, tag := range tags {
		n := utf8.RuneCountInString(tag)
		if strings.Contains(tag, "/") || n <= 2 || n >= 20 {
			continue
		}
		return capitalize(tag)
	}
	return Miscellaneous
}

var defaultClassifier = NewClassifier(nil)

// FromTitle classifies with DefaultRules.
func FromTitle(title string, tags []string) string {
	return defaultClassifier.FromTitle(title, tags)
}

var loweredTagRules = lowerRules(tagRules)

// FromTags maps provider tags onto a category. The first tag containing a
// known keyword decides; otherwise the first tag is used verbatim, and a
// market without tags is domain.UncategorizedCategory.
func FromTags(tags []string) string {
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		for _, r := range loweredTagRules {
			for _, kw := range r.Keywords {
				if strings.Contains(lower, kw) {
					return r.Category
				}
			}
		}
	}
	for _, tag := range tags {
		if strings.TrimSpace(tag) != "" {
			return tag
		}
	}
	return domain.UncategorizedCategory
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return strings.ToUpper(string(r)) + strings.ToLower(s[size:])
}
