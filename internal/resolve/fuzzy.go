package resolve

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultThreshold is the minimum similarity for a fuzzy key match
const DefaultThreshold = 0.6

var (
	keyNoise  = regexp.MustCompile(`[^a-z0-9]+`)
	keyDigits = regexp.MustCompile(`\d+`)
)

// Prefixes and suffixes that do not change what a key means
var (
	stemPrefixes = []string{"identity_", "social_links_", "socials_", "social_", "business_", "contact_", "content_", "theme_", "trust_"}
	stemSuffixes = []string{"_url", "_link", "_handle", "_address"}
)

// semanticClasses assigns a key to at most one class; the first class whose
// token occurs in the key wins. Keys in different classes never match.
var semanticClasses = []struct {
	class  string
	tokens []string
}{
	{"email", []string{"email", "mail"}},
	{"phone", []string{"phone", "tel", "mobile", "fax"}},
	{"postcode", []string{"postcode", "postal", "zip"}},
	{"suburb", []string{"suburb", "locality", "city"}},
	{"state", []string{"state", "region"}},
	{"abn", []string{"abn"}},
	{"owner", []string{"owner", "founder"}},
	{"logo", []string{"logo"}},
	{"color", []string{"color", "colour"}},
	{"form", []string{"_form", "form_"}},
	{"address", []string{"address", "street"}},
	{"website", []string{"website", "domain", "site"}},
	{"facebook", []string{"facebook"}},
	{"instagram", []string{"instagram"}},
	{"twitter", []string{"twitter"}},
	{"linkedin", []string{"linkedin"}},
	{"youtube", []string{"youtube"}},
	{"tiktok", []string{"tiktok"}},
	{"pinterest", []string{"pinterest"}},
	{"quote", []string{"quote"}},
	{"author", []string{"author"}},
	{"rating", []string{"rating"}},
	{"image", []string{"image", "img", "photo"}},
	{"description", []string{"description", "desc", "about"}},
	{"title", []string{"title"}},
	{"tagline", []string{"tagline", "slogan"}},
}

// Match is a scored candidate key
type Match struct {
	Key   string
	Score float64
}

// NormalizeKey lowercases a key and folds separators into single underscores
func NormalizeKey(key string) string {
	return strings.Trim(keyNoise.ReplaceAllString(strings.ToLower(key), "_"), "_")
}

// Similarity scores how likely candidate names the same field as target,
// in [0,1]. Equal keys score 1; keys equal after dropping decorative
// prefixes and suffixes score 0.95; otherwise the trigram Jaccard index.
// Keys in different semantic classes, or with different group indexes,
// score 0.
func Similarity(target, candidate string) float64 {
	t, c := NormalizeKey(target), NormalizeKey(candidate)
	if t == "" || c == "" {
		return 0
	}
	if t == c {
		return 1
	}
	if classOf(t) != classOf(c) {
		return 0
	}
	if strings.Join(keyDigits.FindAllString(t, -1), ",") != strings.Join(keyDigits.FindAllString(c, -1), ",") {
		return 0
	}

	ts, cs := stem(t), stem(c)
	if compact(ts) == compact(cs) {
		return 0.95
	}

	score := trigram(t, c)
	if s := trigram(ts, cs); s > score {
		score = s
	}
	return score
}

// Rank returns every candidate scoring at least threshold, best first.
// Ties prefer a candidate sharing the target's leading segment, then
// lexical order.
func Rank(target string, candidates []string, threshold float64) []Match {
	prefix := leadingSegment(NormalizeKey(target))

	var out []Match
	for _, c := range candidates {
		if s := Similarity(target, c); s >= threshold && s > 0 {
			out = append(out, Match{Key: c, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		pi := leadingSegment(NormalizeKey(out[i].Key)) == prefix
		pj := leadingSegment(NormalizeKey(out[j].Key)) == prefix
		if pi != pj {
			return pi
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// BestMatch returns the best candidate at or above threshold
func BestMatch(target string, candidates []string, threshold float64) (Match, bool) {
	ranked := Rank(target, candidates, threshold)
	if len(ranked) == 0 {
		return Match{}, false
	}
	return ranked[0], true
}

func classOf(key string) string {
	for _, sc := range semanticClasses {
		for _, tok := range sc.tokens {
			if strings.Contains(key, tok) {
				return sc.class
			}
		}
	}
	return ""
}

func stem(key string) string {
	for changed := true; changed; {
		changed = false
		for _, p := range stemPrefixes {
			if strings.HasPrefix(key, p) && len(key) > len(p) {
				key = key[len(p):]
				changed = true
			}
		}
		for _, s := range stemSuffixes {
			if strings.HasSuffix(key, s) && len(key) > len(s) {
				key = key[:len(key)-len(s)]
				changed = true
			}
		}
	}
	return key
}

func compact(key string) string {
	return strings.ReplaceAll(key, "_", "")
}

func leadingSegment(key string) string {
	if i := strings.IndexByte(key, '_'); i > 0 {
		return key[:i]
	}
	return key
}

// trigram is the Jaccard index of the padded character trigrams of the
// keys with separators removed.
func trigram(a, b string) float64 {
	ta, tb := trigrams(compact(a)), trigrams(compact(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func trigrams(s string) map[string]struct{} {
	s = "  " + s + " "
	out := make(map[string]struct{})
	for i := 0; i+3 <= len(s); i++ {
		out[s[i:i+3]] = struct{}{}
	}
	return out
}
