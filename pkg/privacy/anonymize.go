package privacy

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
)

// minLiteral is the shortest identifier literal that is substituted.
// Single letters would shred ordinary words.
const minLiteral = 2

// identifierFields lists, per source, raw fields whose values are direct
// identifiers and how to read them.
var identifierFields = map[model.Source][]struct {
	name string
	read func(r *registry, value string)
}{
	model.SourceEmail: {
		{"from", (*registry).addAddresses},
		{"to", (*registry).addAddresses},
		{"cc", (*registry).addAddresses},
		{"bcc", (*registry).addAddresses},
	},
	model.SourceCalendarEvent: {
		{"organizer", (*registry).addAddresses},
		{"attendees", (*registry).addAddresses},
		{"location", func(r *registry, v string) { r.add(v, model.IdentifierLocation) }},
	},
	model.SourceTransaction: {
		{"account_number", func(r *registry, v string) { r.add(v, model.IdentifierAccount) }},
		{"counterparty", func(r *registry, v string) { r.add(v, model.IdentifierOrganization) }},
	},
}

type detector struct {
	kind model.IdentifierKind
	re   *regexp.Regexp
}

var detectors = []detector{
	{model.IdentifierEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{model.IdentifierAccount, regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`)},
	{model.IdentifierAccount, regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)},
	{model.IdentifierNationalID, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{model.IdentifierPhone, regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?(?:\(\d{3}\)|\d{3})[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
	{model.IdentifierAccount, regexp.MustCompile(`\b\d{8,}\b`)},
}

type identifier struct {
	literal  string
	kind     model.IdentifierKind
	identity string
	// guard marks literals that are removed even inside a larger word.
	guard bool
}

// registry collects the identifiers known for one record. Identity ties
// different literals of the same entity (a full name and its first name)
// to one token.
type registry struct {
	items []identifier
	seen  map[string]int
	// parts maps a lowercased name part to the identity of the full name
	// it belongs to, or "" when several names share it.
	parts map[string]string
	names map[string]bool
}

func newRegistry() *registry {
	return &registry{
		seen:  map[string]int{},
		parts: map[string]string{},
		names: map[string]bool{},
	}
}

func identityOf(kind model.IdentifierKind, literal string) string {
	v := strings.ToLower(strings.TrimSpace(literal))
	switch kind {
	case model.IdentifierAccount, model.IdentifierPhone, model.IdentifierNationalID:
		if digits := strings.Map(keepDigit, v); digits != "" {
			v = digits
		}
	}
	return string(kind) + ":" + v
}

func keepDigit(r rune) rune {
	if unicode.IsDigit(r) {
		return r
	}
	return -1
}

// add registers a literal read from a record field.
func (r *registry) add(literal string, kind model.IdentifierKind) {
	r.addWithIdentity(literal, kind, identityOf(kind, literal), guarded(literal))
}

func (r *registry) addWithIdentity(literal string, kind model.IdentifierKind, identity string, guard bool) {
	literal = strings.TrimSpace(literal)
	if utf8.RuneCountInString(literal) < minLiteral {
		return
	}
	key := strings.ToLower(literal)
	if i, ok := r.seen[key]; ok {
		r.items[i].guard = r.items[i].guard || guard
		return
	}
	r.seen[key] = len(r.items)
	r.items = append(r.items, identifier{literal: literal, kind: kind, identity: identity, guard: guard})
}

// guarded reports whether a field literal is distinctive enough to remove
// wherever it appears. A single bare word such as "Ed" or "Lee" is only
// matched as a whole word.
func guarded(literal string) bool {
	return strings.ContainsFunc(strings.TrimSpace(literal), func(c rune) bool {
		return unicode.IsSpace(c) || unicode.IsDigit(c) || c == '@'
	})
}

func (r *registry) addPerson(name string) {
	name = strings.Trim(strings.TrimSpace(name), `"'`)
	if utf8.RuneCountInString(name) < minLiteral {
		return
	}
	identity := identityOf(model.IdentifierPerson, name)
	r.names[identity] = true
	r.addWithIdentity(name, model.IdentifierPerson, identity, guarded(name))

	parts := strings.FieldsFunc(name, func(c rune) bool {
		return !unicode.IsLetter(c) && c != '\'' && c != '-'
	})
	if len(parts) < 2 {
		return
	}
	for _, p := range parts {
		if utf8.RuneCountInString(p) < minLiteral {
			continue
		}
		lp := strings.ToLower(p)
		if prev, ok := r.parts[lp]; ok && prev != identity {
			r.parts[lp] = ""
			continue
		}
		r.parts[lp] = identity
	}
}

// addAddresses reads an address list such as "Alice Smith <alice@x.org>,
// bob@x.org". Values that do not parse are split on commas.
func (r *registry) addAddresses(value string) {
	list, err := mail.ParseAddressList(value)
	if err != nil {
		for _, item := range strings.Split(value, ",") {
			item = strings.TrimSpace(item)
			if addr, err := mail.ParseAddress(item); err == nil {
				list = append(list, addr)
				continue
			}
			if strings.Contains(item, "@") {
				r.add(item, model.IdentifierEmail)
			} else {
				r.addPerson(item)
			}
		}
	}

	for _, addr := range list {
		if addr.Name != "" {
			r.addPerson(addr.Name)
		}
		if addr.Address != "" {
			r.add(addr.Address, model.IdentifierEmail)
		}
	}
}

// addSpan registers an identifier reported by the summarizer.
func (r *registry) addSpan(literal string, kind model.IdentifierKind) {
	if kind != model.IdentifierPerson {
		r.addWithIdentity(literal, kind, identityOf(kind, literal), false)
		return
	}

	identity := identityOf(model.IdentifierPerson, literal)
	if !r.names[identity] {
		if full, ok := r.parts[strings.ToLower(strings.TrimSpace(literal))]; ok && full != "" {
			identity = full
		}
	}
	r.addWithIdentity(literal, model.IdentifierPerson, identity, false)
}

// finalize registers name parts so a bare first name in the summary gets
// the token of the full name.
func (r *registry) finalize() {
	parts := make([]string, 0, len(r.parts))
	for p := range r.parts {
		parts = append(parts, p)
	}
	sort.Strings(parts)

	for _, p := range parts {
		identity := r.parts[p]
		if identity == "" {
			identity = identityOf(model.IdentifierPerson, p)
		}
		r.addWithIdentity(p, model.IdentifierPerson, identity, false)
	}
}

type match struct {
	start, end int
	kind       model.IdentifierKind
	identity   string
}

func (r *registry) matches(text string) []match {
	var out []match
	for _, id := range r.items {
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(id.literal))
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if !bounded(text, loc[0], loc[1]) {
				continue
			}
			out = append(out, match{start: loc[0], end: loc[1], kind: id.kind, identity: id.identity})
		}
	}

	for _, d := range detectors {
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			if !bounded(text, loc[0], loc[1]) {
				continue
			}
			out = append(out, match{
				start:    loc[0],
				end:      loc[1],
				kind:     d.kind,
				identity: identityOf(d.kind, text[loc[0]:loc[1]]),
			})
		}
	}

	return out
}

// bounded reports whether text[start:end] is not part of a larger word.
func bounded(text string, start, end int) bool {
	first, _ := utf8.DecodeRuneInString(text[start:end])
	last, _ := utf8.DecodeLastRuneInString(text[start:end])
	if start > 0 && isWord(first) {
		if prev, _ := utf8.DecodeLastRuneInString(text[:start]); isWord(prev) {
			return false
		}
	}
	if end < len(text) && isWord(last) {
		if next, _ := utf8.DecodeRuneInString(text[end:]); isWord(next) {
			return false
		}
	}
	return true
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

type segment struct {
	text  string
	token bool
}

// tokenizer assigns numbered tokens per kind in order of first appearance.
// Its scope is a single summary.
type tokenizer struct {
	counters map[model.IdentifierKind]int
	tokens   map[string]string
}

func newTokenizer() *tokenizer {
	return &tokenizer{
		counters: map[model.IdentifierKind]int{},
		tokens:   map[string]string{},
	}
}

func (t *tokenizer) token(kind model.IdentifierKind, identity string) string {
	if tok, ok := t.tokens[identity]; ok {
		return tok
	}
	t.counters[kind]++
	tok := fmt.Sprintf("%s-%d", kind.Token(), t.counters[kind])
	t.tokens[identity] = tok
	return tok
}

// substitute replaces every identifier in text with its token. Matches are
// taken leftmost first and longest first without overlap. A second pass
// removes guarded literals that survived inside a larger word.
func substitute(text string, r *registry) string {
	found := r.matches(text)
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].start != found[j].start {
			return found[i].start < found[j].start
		}
		return found[i].end-found[i].start > found[j].end-found[j].start
	})

	tk := newTokenizer()
	var segments []segment
	pos := 0
	for _, m := range found {
		if m.start < pos {
			continue
		}
		if m.start > pos {
			segments = append(segments, segment{text: text[pos:m.start]})
		}
		segments = append(segments, segment{text: tk.token(m.kind, m.identity), token: true})
		pos = m.end
	}
	if pos < len(text) {
		segments = append(segments, segment{text: text[pos:]})
	}

	var longest []identifier
	for _, id := range r.items {
		if id.guard {
			longest = append(longest, id)
		}
	}
	sort.SliceStable(longest, func(i, j int) bool {
		return len(longest[i].literal) > len(longest[j].literal)
	})
	for _, id := range longest {
		segments = forceReplace(segments, id, tk)
	}

	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.text)
	}
	return b.String()
}

func forceReplace(segments []segment, id identifier, tk *tokenizer) []segment {
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(id.literal))
	out := make([]segment, 0, len(segments))
	for _, s := range segments {
		if s.token {
			out = append(out, s)
			continue
		}
		locs := re.FindAllStringIndex(s.text, -1)
		if len(locs) == 0 {
			out = append(out, s)
			continue
		}
		pos := 0
		for _, loc := range locs {
			if loc[0] > pos {
				out = append(out, segment{text: s.text[pos:loc[0]]})
			}
			out = append(out, segment{text: tk.token(id.kind, id.identity), token: true})
			pos = loc[1]
		}
		if pos < len(s.text) {
			out = append(out, segment{text: s.text[pos:]})
		}
	}
	return out
}
