package ui

import "testing"

func TestParseColor(t *testing.T) {
	cases := map[string]struct {
		r, g, b, a uint8
	}{
		"#fff":      {0xff, 0xff, 0xff, 0xff},
		"#0f08":     {0x00, 0xff, 0x00, 0x88},
		"#336699":   {0x33, 0x66, 0x99, 0xff},
		"336699cc":  {0x33, 0x66, 0x99, 0xcc},
	}
	for input, want := range cases {
		c, err := ParseColor(input)
		if err != nil {
			t.Fatalf("ParseColor(%q): %v", input, err)
		}
		if c.R != want.r || c.G != want.g || c.B != want.b || c.A != want.a {
			t.Errorf("ParseColor(%q) = %+v, want %+v", input, c, want)
		}
	}
}

func TestParseColorInvalid(t *testing.T) {
	for _, input := range []string{"", "#ff", "#12345", "#gggggg"} {
		if _, err := ParseColor(input); err == nil {
			t.Errorf("ParseColor(%q): expected error", input)
		}
	}
}
