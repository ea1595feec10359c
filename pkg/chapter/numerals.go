package chapter

// Chinese numeral digits, including formal (banker's) variants.
var cnDigits = map[rune]int64{
	'零': 0, '〇': 0,
	'一': 1, '壹': 1,
	'二': 2, '贰': 2, '两': 2,
	'三': 3, '叁': 3,
	'四': 4, '肆': 4,
	'五': 5, '伍': 5,
	'六': 6, '陆': 6,
	'七': 7, '柒': 7,
	'八': 8, '捌': 8,
	'九': 9, '玖': 9,
}

var cnUnits = map[rune]int64{
	'十': 10, '拾': 10,
	'百': 100, '佰': 100,
	'千': 1000, '仟': 1000,
	'万': 10000,
}

// parseChineseNumber converts a Chinese numeral string such as "一百二十三"
// to its integer value. A unit without a preceding digit counts as one of
// that unit ("十一" is eleven). Returns false when the string contains no
// recognizable numeral.
func parseChineseNumber(s string) (int64, bool) {
	var result, pending int64
	seen := false
	for _, r := range s {
		if d, ok := cnDigits[r]; ok {
			pending = d
			seen = true
			continue
		}
		if u, ok := cnUnits[r]; ok {
			if pending > 0 {
				result += pending * u
			} else {
				result += u
			}
			pending = 0
			seen = true
		}
	}
	result += pending
	if !seen {
		return 0, false
	}
	return result, true
}
