// Package chapter detects chapter headings in raw book text and maps them
// to character offsets. Detection is a pure function of the input text and
// an ordered rule list, so callers can swap or extend the rule set without
// touching process-wide state.
package chapter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Mark is one detected chapter heading: the trimmed heading line and the
// character offset of the start of that line in the full decoded text.
type Mark struct {
	Title    string
	Position int64
}

// Rule decides whether a trimmed, non-empty line is a chapter heading.
// Rules are tried in order; the first match wins.
type Rule struct {
	Name  string
	Match func(line string) bool
}

var (
	// 第N章 / 三章 / 第 12 节, with an optional short title tail.
	cjkNumbered = regexp.MustCompile(`^第?\s{0,4}([0-9〇零一二两三四五六七八九十百千万壹贰叁肆伍陆柒捌玖拾佰仟]+)\s{0,4}([章节卷集部篇])(.{0,30})$`)
	arabicOnly  = regexp.MustCompile(`^[0-9]+$`)

	// Structural section markers that head unnumbered divisions.
	cjkSection = regexp.MustCompile(`^(序章|序言|卷首语|扉页|楔子|正文|终章|后记|尾声|番外)(.{0,30})$`)

	englishChapter = regexp.MustCompile(`^(?i)chapter\s+([0-9]+|[IVXLCDM]+)\b.{0,30}$`)
	standaloneNum  = regexp.MustCompile(`^([0-9]{1,4}|[IVXLCDM]{1,12})$`)
)

// Suffixes that turn an apparent heading back into body text, e.g.
// 节课 is a lesson, 部分 a fraction, 篇张 a sheet count.
var unitRejects = map[string][]string{
	"节": {"课"},
	"集": {"合", "和"},
	"部": {"分", "赛", "游"},
	"篇": {"张"},
}

func matchCJKNumbered(line string) bool {
	m := cjkNumbered.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	numeral, unit, tail := m[1], m[2], m[3]
	for _, bad := range unitRejects[unit] {
		if strings.HasPrefix(tail, bad) {
			return false
		}
	}
	if arabicOnly.MatchString(numeral) {
		return true
	}
	_, ok := parseChineseNumber(numeral)
	return ok
}

func matchCJKSection(line string) bool {
	m := cjkSection.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	// 正文完 / 正文结 close the body rather than open it.
	if m[1] == "正文" && (strings.HasPrefix(m[2], "完") || strings.HasPrefix(m[2], "结")) {
		return false
	}
	return true
}

// DefaultRules returns the built-in heading rules in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "cjk-numbered", Match: matchCJKNumbered},
		{Name: "cjk-section", Match: matchCJKSection},
		{Name: "english-chapter", Match: englishChapter.MatchString},
		{Name: "standalone-numeral", Match: standaloneNum.MatchString},
	}
}

// Index scans text once, left to right, and returns the chapter marks in
// scan order, which is strictly ascending by position. It is total: text
// with no recognizable headings yields an empty slice. Text before the
// first heading (a preamble) is addressable content but gets no mark.
func Index(text string, rules []Rule) []Mark {
	var marks []Mark
	offset := int64(0) // character offset of the current line start
	for len(text) > 0 {
		line := text
		rest := ""
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line, rest = text[:i], text[i+1:]
		}
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			for _, rule := range rules {
				if rule.Match(trimmed) {
					marks = append(marks, Mark{Title: trimmed, Position: offset})
					break
				}
			}
		}
		offset += int64(utf8.RuneCountInString(line)) + 1
		text = rest
	}
	return marks
}
