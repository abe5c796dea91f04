// Copyright 2024-2026 Aiku AI

// Package tdfmt converts between Mattermost markdown and formattedText
// objects with UTF-16 entity offsets.
package tdfmt

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

// One alternation so earlier constructs (code) shadow later ones.
var tokenRe = regexp.MustCompile(
	"(?s)```(\\w+)?\\n?(.*?)```" +
		"|`([^`\\n]+)`" +
		`|\*\*(.+?)\*\*` +
		`|~~(.+?)~~` +
		`|\[([^\]]+)\]\(([^)\s]+)\)` +
		`|\b_([^_\n]+)_\b`)

const (
	grpLang = 2 * (iota + 1)
	grpBlock
	grpCode
	grpBold
	grpStrike
	grpLinkText
	grpLinkURL
	grpItalic
)

// FromMarkdown strips the supported markdown markers from md and returns
// the plain text with matching entities. Links with unsafe schemes keep
// only their text.
func FromMarkdown(md string) tdproto.FormattedText {
	var out strings.Builder
	var entities []tdproto.TextEntity
	var offset int32
	last := 0

	write := func(s string) int32 {
		out.WriteString(s)
		n := utf16Len(s)
		offset += n
		return n
	}
	group := func(m []int, g int) (string, bool) {
		if m[g] < 0 {
			return "", false
		}
		return md[m[g]:m[g+1]], true
	}
	add := func(text string, typ tdproto.TextEntityType) {
		start := offset
		if n := write(text); n > 0 {
			entities = append(entities, tdproto.TextEntity{Offset: start, Length: n, Type: typ})
		}
	}

	for _, m := range tokenRe.FindAllStringSubmatchIndex(md, -1) {
		write(md[last:m[0]])
		last = m[1]

		if block, ok := group(m, grpBlock); ok {
			lang, _ := group(m, grpLang)
			typ := tdproto.TextEntityType{Type: tdproto.EntityPre}
			if lang != "" {
				typ = tdproto.TextEntityType{Type: tdproto.EntityPreCode, Language: lang}
			}
			add(block, typ)
		} else if code, ok := group(m, grpCode); ok {
			add(code, tdproto.TextEntityType{Type: tdproto.EntityCode})
		} else if bold, ok := group(m, grpBold); ok {
			add(bold, tdproto.TextEntityType{Type: tdproto.EntityBold})
		} else if strike, ok := group(m, grpStrike); ok {
			add(strike, tdproto.TextEntityType{Type: tdproto.EntityStrikethrough})
		} else if text, ok := group(m, grpLinkText); ok {
			href, _ := group(m, grpLinkURL)
			if isSafeURL(href) {
				add(text, tdproto.TextEntityType{Type: tdproto.EntityTextURL, URL: href})
			} else {
				write(text)
			}
		} else if italic, ok := group(m, grpItalic); ok {
			add(italic, tdproto.TextEntityType{Type: tdproto.EntityItalic})
		}
	}
	write(md[last:])

	return tdproto.FormattedText{Text: out.String(), Entities: entities}
}

// ToMarkdown renders formatted text as Mattermost markdown. Entities that
// overlap an earlier one, or fall outside the text, are dropped.
func ToMarkdown(ft tdproto.FormattedText) string {
	if len(ft.Entities) == 0 {
		return ft.Text
	}
	units := utf16.Encode([]rune(ft.Text))

	entities := make([]tdproto.TextEntity, len(ft.Entities))
	copy(entities, ft.Entities)
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Offset != entities[j].Offset {
			return entities[i].Offset < entities[j].Offset
		}
		return entities[i].Length > entities[j].Length
	})

	var out strings.Builder
	pos := 0
	for _, e := range entities {
		start, end := int(e.Offset), int(e.Offset)+int(e.Length)
		if start < pos || e.Length <= 0 || end > len(units) {
			continue
		}
		out.WriteString(decode(units[pos:start]))
		out.WriteString(wrap(decode(units[start:end]), e.Type))
		pos = end
	}
	out.WriteString(decode(units[pos:]))
	return out.String()
}

func wrap(text string, typ tdproto.TextEntityType) string {
	switch typ.Type {
	case tdproto.EntityBold:
		return "**" + text + "**"
	case tdproto.EntityItalic:
		return "_" + text + "_"
	case tdproto.EntityStrikethrough:
		return "~~" + text + "~~"
	case tdproto.EntityCode:
		return "`" + text + "`"
	case tdproto.EntityPre, tdproto.EntityPreCode:
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		return "```" + typ.Language + "\n" + text + "```"
	case tdproto.EntityTextURL:
		if !isSafeURL(typ.URL) {
			return text
		}
		return "[" + text + "](" + typ.URL + ")"
	default:
		return text
	}
}

func isSafeURL(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "mailto:")
}

func utf16Len(s string) int32 {
	var n int32
	for _, r := range s {
		n++
		if r >= 0x10000 {
			n++
		}
	}
	return n
}

func decode(units []uint16) string {
	return string(utf16.Decode(units))
}
