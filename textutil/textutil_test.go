package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPlace(t *testing.T) {
	tests := []struct {
		place    int
		expected string
	}{
		{1, "1st"},
		{2, "2nd"},
		{3, "3rd"},
		{4, "4th"},
		{11, "11th"},
		{12, "12th"},
		{13, "13th"},
		{21, "21st"},
		{22, "22nd"},
		{101, "101st"},
		{111, "111th"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := FormatPlace(tt.place); result != tt.expected {
				t.Errorf("FormatPlace(%d) = %q, want %q", tt.place, result, tt.expected)
			}
		})
	}
}

func TestChoiceLabel(t *testing.T) {
	assert.Equal(t, "1st choice", ChoiceLabel(0))
	assert.Equal(t, "4th choice", ChoiceLabel(3))
	assert.Equal(t, "random", ChoiceLabel(-1))
}

func TestNumbers(t *testing.T) {
	assert.Equal(t, "87.5%", Percent(87.5))
	assert.Equal(t, "0.0%", Percent(0))
	assert.Equal(t, "100.0%", Percent(100))
	assert.Equal(t, "7/13", Ratio(7, 13))
	assert.Equal(t, "1, 2, 3", JoinInts([]int{1, 2, 3}, ", "))
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty", "", nil},
		{"one", "Instructor 1", []string{"Instructor 1"}},
		{"trims", " A ,B,  C ", []string{"A", "B", "C"}},
		{"drops blanks", "A,,B, ,", []string{"A", "B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input))
		})
	}
}
