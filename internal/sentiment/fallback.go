package sentiment

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

var positiveWords = map[string]bool{
	"innovation": true, "breakthrough": true, "advance": true, "improve": true, "growth": true,
	"profit": true, "success": true, "launch": true, "release": true, "announce": true,
	"develop": true, "create": true, "build": true, "expand": true, "leadership": true,
	"competitive": true, "advantage": true, "solution": true, "solve": true, "technology": true,
	"digital": true, "ai": true, "efficiency": true, "performance": true, "quality": true,
	"award": true, "recognition": true, "partnership": true, "investment": true, "funding": true,
	"revenue": true, "sales": true, "customer": true, "user": true, "adoption": true,
}

var positivePhrases = []string{"market leader", "artificial intelligence", "machine learning"}

var negativeWords = map[string]bool{
	"failure": true, "loss": true, "decline": true, "decrease": true, "problem": true,
	"issue": true, "error": true, "bug": true, "crash": true, "hack": true,
	"breach": true, "security": true, "privacy": true, "lawsuit": true, "fine": true,
	"penalty": true, "regulation": true, "ban": true, "restrict": true, "limit": true,
	"delay": true, "cancel": true, "shutdown": true, "bankruptcy": true, "layoff": true,
	"fired": true, "resign": true, "quit": true,
}

// problems framed as something the company handles count as positive
var positivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`solve.*problem`),
	regexp.MustCompile(`address.*challenge`),
	regexp.MustCompile(`overcome.*obstacle`),
	regexp.MustCompile(`innovative.*solution`),
	regexp.MustCompile(`breakthrough.*technology`),
	regexp.MustCompile(`leading.*industry`),
	regexp.MustCompile(`market.*leader`),
	regexp.MustCompile(`competitive.*advantage`),
	regexp.MustCompile(`strategic.*partnership`),
}

var (
	wordRe        = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	keywordFilter = map[string]bool{"the": true, "and": true, "for": true, "with": true, "this": true, "that": true}
)

// Fallback scores text with word lists. Scores stay within ±0.8.
func Fallback(entity, text string) Result {
	lower := strings.ToLower(text)
	words := wordRe.FindAllString(lower, -1)

	counts := make(map[string]int)
	first := make(map[string]int)
	for i, w := range words {
		if _, ok := first[w]; !ok {
			first[w] = i
		}
		counts[w]++
	}

	pos, neg := 0, 0
	for w, n := range counts {
		if positiveWords[w] {
			pos += n
		}
		if negativeWords[w] {
			neg += n
		}
	}
	for _, p := range positivePhrases {
		pos += strings.Count(lower, p)
	}
	patterns := 0
	for _, re := range positivePatterns {
		if re.MatchString(lower) {
			patterns += 2
		}
	}

	total := pos + patterns - neg
	score := math.Max(-0.8, math.Min(0.8, float64(total)/10))
	score = math.Round(score*100) / 100

	return Result{
		Score:     score,
		Sentiment: Label(score),
		Summary:   fallbackSummary(entity, score),
		Keywords:  topKeywords(counts, first, 5),
		Reasoning: fmt.Sprintf("Fallback analysis based on word frequency and pattern matching. Positive words: %d, Negative words: %d, Pattern bonus: %d", pos, neg, patterns),
		Provider:  "fallback",
	}
}

func fallbackSummary(entity string, score float64) string {
	switch {
	case score > 0.3:
		return fmt.Sprintf("Article shows positive developments for %s with focus on innovation and market strength.", entity)
	case score > 0:
		return fmt.Sprintf("Article has positive elements for %s with some promising developments.", entity)
	case score < -0.3:
		return fmt.Sprintf("Article contains concerning elements for %s that may impact performance.", entity)
	case score < 0:
		return fmt.Sprintf("Article has some negative aspects for %s but overall impact is limited.", entity)
	default:
		return fmt.Sprintf("Article appears neutral for %s with no clear positive or negative impact.", entity)
	}
}

// topKeywords picks the n most frequent words longer than three letters
// from the ten most frequent overall. Ties keep document order.
func topKeywords(counts map[string]int, first map[string]int, n int) []string {
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return first[words[i]] < first[words[j]]
	})
	if len(words) > 10 {
		words = words[:10]
	}

	out := []string{}
	for _, w := range words {
		if len([]rune(w)) > 3 && !keywordFilter[w] {
			out = append(out, w)
			if len(out) == n {
				break
			}
		}
	}
	return out
}
