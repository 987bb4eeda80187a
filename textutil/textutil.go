package textutil

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatPlace converts a numeric place (1, 2, 3, ...) to a string ("1st", "2nd", "3rd", ...).
func FormatPlace(place int) string {
	suffix := "th"
	if place%100 < 11 || place%100 > 13 {
		switch place % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", place, suffix)
}

// ChoiceLabel describes a 0-based preference rank: 0 is "1st choice".
// Negative ranks are random picks.
func ChoiceLabel(rank int) string {
	if rank < 0 {
		return "random"
	}
	return FormatPlace(rank+1) + " choice"
}

// Percent formats a rate that is already in percent, with one decimal.
func Percent(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64) + "%"
}

// Ratio formats "current/max".
func Ratio(current, max int) string {
	return strconv.Itoa(current) + "/" + strconv.Itoa(max)
}

// JoinInts concatenates the elements of an int slice with a separator.
func JoinInts(elems []int, sep string) string {
	strs := make([]string, len(elems))
	for i, v := range elems {
		strs[i] = strconv.Itoa(v)
	}
	return strings.Join(strs, sep)
}

// SplitList splits a comma-separated list, trimming blanks and dropping
// empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
