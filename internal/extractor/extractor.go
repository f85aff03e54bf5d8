// Package extractor pulls structured entities (region, monetary value, year,
// spending category) out of free-text queries using lookup tables and
// pattern rules. Extraction is deterministic and side-effect-free;
// unrecognized phrases are silently ignored.
package extractor

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/sentinela-br/sentinela/internal/models"
)

// Overlapping patterns resolve by fixed precedence: a span claimed by a
// higher-precedence kind is never reassigned. Order: region > monetary >
// year > category.

// categoryOrder fixes iteration order over the taxonomy so extraction is
// deterministic.
var categoryOrder = []string{
	"health", "education", "infrastructure", "security",
	"social", "technology", "environment", "agriculture",
}

var (
	// Monetary expressions: an optional R$ prefix, a pt-BR formatted
	// number (or the words um/uma), an optional magnitude word, an
	// optional "reais" suffix. A bare number with neither prefix,
	// magnitude nor suffix is not monetary (it may be a year).
	moneyRe = regexp.MustCompile(`(r\$\s*)?\b(um|uma|\d+(?:\.\d{3})*(?:,\d+)?)(?:\s+(mil|milhao|milhoes|bilhao|bilhoes|trilhao|trilhoes))?(\s+(?:de\s+)?reais)?\b`)

	yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

type span struct {
	start, end int // rune offsets, half-open
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// Extractor is stateless; the zero value is ready to use
type Extractor struct{}

// New returns an Extractor
func New() *Extractor { return &Extractor{} }

// Fold lowercases s and strips pt-BR diacritics, preserving rune count
func Fold(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range strings.ToLower(s) {
		if f, ok := foldRunes[r]; ok {
			r = f
		}
		out = append(out, r)
	}
	return string(out)
}

// Extract returns the ordered entity set found in query. Entities are
// ordered by their position in the text; duplicate kinds are allowed.
func (e *Extractor) Extract(query string) []models.Entity {
	orig := []rune(query)
	folded := []rune(Fold(query))

	var claimed []span
	type hit struct {
		span   span
		entity models.Entity
	}
	var hits []hit

	claim := func(s span, ent models.Entity) {
		claimed = append(claimed, s)
		hits = append(hits, hit{span: s, entity: ent})
	}
	free := func(s span) bool {
		for _, c := range claimed {
			if s.overlaps(c) {
				return false
			}
		}
		return true
	}

	// 1. Regions: full names (longest first), then uppercase two-letter
	// abbreviations.
	for _, name := range regionNames {
		nameRunes := []rune(name)
		for _, s := range findWord(folded, nameRunes) {
			if !free(s) {
				continue
			}
			// "para" collides with the preposition; only the
			// accented spelling identifies the state.
			if name == "para" && string(orig[s.start:s.end]) == string(folded[s.start:s.end]) {
				continue
			}
			claim(s, models.Entity{
				Kind:       models.EntityRegion,
				RawText:    string(orig[s.start:s.end]),
				Normalized: regionCodes[name],
			})
		}
	}
	for _, tok := range tokenize(folded) {
		if tok.end-tok.start != 2 || !free(tok) {
			continue
		}
		code, ok := regionCodes[string(folded[tok.start:tok.end])]
		if !ok {
			continue
		}
		// Two-letter tokens double as common Portuguese words ("se",
		// "da", "em"); only an all-uppercase original counts as an
		// abbreviation.
		if !allUpper(orig[tok.start:tok.end]) {
			continue
		}
		claim(tok, models.Entity{
			Kind:       models.EntityRegion,
			RawText:    string(orig[tok.start:tok.end]),
			Normalized: code,
		})
	}

	// 2. Monetary values
	foldedStr := string(folded)
	byteToRune := byteRuneTable(foldedStr)
	for _, m := range moneyRe.FindAllStringSubmatchIndex(foldedStr, -1) {
		prefix := m[2] >= 0
		magnitude := ""
		if m[6] >= 0 {
			magnitude = foldedStr[m[6]:m[7]]
		}
		suffix := m[8] >= 0
		if !prefix && magnitude == "" && !suffix {
			continue
		}
		s := span{start: byteToRune[m[0]], end: byteToRune[m[1]]}
		if !free(s) {
			continue
		}
		value, err := parseNumber(foldedStr[m[4]:m[5]])
		if err != nil {
			continue
		}
		if mult, ok := magnitudes[magnitude]; ok {
			value *= mult
		}
		claim(s, models.Entity{
			Kind:         models.EntityMonetary,
			RawText:      strings.TrimSpace(string(orig[s.start:s.end])),
			Normalized:   strconv.FormatFloat(value, 'f', -1, 64),
			NumericValue: value,
		})
	}

	// 3. Explicit four-digit years
	for _, m := range yearRe.FindAllStringIndex(foldedStr, -1) {
		s := span{start: byteToRune[m[0]], end: byteToRune[m[1]]}
		if !free(s) {
			continue
		}
		year, err := strconv.Atoi(foldedStr[m[0]:m[1]])
		if err != nil {
			continue
		}
		claim(s, models.Entity{
			Kind:         models.EntityYear,
			RawText:      string(orig[s.start:s.end]),
			Normalized:   fmt.Sprintf("%d", year),
			NumericValue: float64(year),
		})
	}

	// 4. Spending categories, one entity per matched category
	for _, cat := range categoryOrder {
		for _, kw := range categoryKeywords[cat] {
			matched := false
			for _, s := range findWord(folded, []rune(kw)) {
				if !free(s) {
					continue
				}
				claim(s, models.Entity{
					Kind:       models.EntityCategory,
					RawText:    string(orig[s.start:s.end]),
					Normalized: cat,
				})
				matched = true
				break
			}
			if matched {
				break
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].span.start < hits[j].span.start })
	entities := make([]models.Entity, 0, len(hits))
	for _, h := range hits {
		entities = append(entities, h.entity)
	}
	return entities
}

// findWord returns every whole-word occurrence of needle in haystack
func findWord(haystack, needle []rune) []span {
	var out []span
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		if string(haystack[i:i+n]) != string(needle) {
			continue
		}
		if i > 0 && isWordRune(haystack[i-1]) {
			continue
		}
		if i+n < len(haystack) && isWordRune(haystack[i+n]) {
			continue
		}
		out = append(out, span{start: i, end: i + n})
	}
	return out
}

func tokenize(runes []rune) []span {
	var out []span
	start := -1
	for i, r := range runes {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, span{start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, span{start: start, end: len(runes)})
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func allUpper(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return len(runes) > 0
}

// parseNumber parses a pt-BR formatted number ("1.500.000,50") or the
// words um/uma.
func parseNumber(s string) (float64, error) {
	if s == "um" || s == "uma" {
		return 1, nil
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	return strconv.ParseFloat(s, 64)
}

// byteRuneTable maps byte offsets of s to rune indexes. Regexp match
// boundaries always fall on rune starts, so continuation bytes are never
// looked up.
func byteRuneTable(s string) []int {
	table := make([]int, len(s)+1)
	runeIdx := 0
	for byteIdx := range s {
		table[byteIdx] = runeIdx
		runeIdx++
	}
	table[len(s)] = runeIdx
	return table
}
