package chapter

import "testing"

func TestParseChineseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"一", 1},
		{"两", 2},
		{"九", 9},
		{"十", 10},
		{"十一", 11},
		{"二十", 20},
		{"二十三", 23},
		{"一百", 100},
		{"一百零五", 105},
		{"一百二十三", 123},
		{"三千", 3000},
		{"一万", 10000},
		{"两万三千", 23000},
		{"壹佰贰拾", 120},
		{"千", 1000},
		{"〇", 0},
	}
	for _, tc := range cases {
		got, ok := parseChineseNumber(tc.in)
		if !ok {
			t.Fatalf("parseChineseNumber(%q) not recognized", tc.in)
		}
		if got != tc.want {
			t.Fatalf("parseChineseNumber(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseChineseNumberRejectsNonNumerals(t *testing.T) {
	for _, in := range []string{"", "abc", "第", "章节"} {
		if _, ok := parseChineseNumber(in); ok {
			t.Fatalf("parseChineseNumber(%q) should not be recognized", in)
		}
	}
}
