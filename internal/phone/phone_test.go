package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare digits", "5511999999999", "5511999999999@c.us"},
		{"already suffixed", "5511999999999@c.us", "5511999999999@c.us"},
		{"formatted", "+55 (11) 99999-9999", "5511999999999@c.us"},
		{"trunk zero", "081234567890", "6281234567890@c.us"},
		{"international prefix", "0062 812 3456 7890", "6281234567890@c.us"},
		{"group address", "120363025246125486@g.us", "120363025246125486@g.us"},
		{"legacy group address", "5511999999999-1612345678@g.us", "5511999999999-1612345678@g.us"},
		{"no digits", "abc", ""},
		{"empty", "", ""},
		{"only zeros", "000", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_CustomCountryCode(t *testing.T) {
	n := New("+55")
	if got := n.Normalize("011999999999"); got != "5511999999999@c.us" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"5511999999999",
		"5511999999999@c.us",
		"081234567890",
		"0062 812 3456 7890",
		"+1 (415) 555-0100",
		"120363025246125486@g.us",
		"0",
		"00",
		"abc@c.us",
		"  62812@C.US ",
	}
	for _, cc := range []string{"", "62", "55", "1"} {
		n := New(cc)
		for _, in := range inputs {
			once := n.Normalize(in)
			twice := n.Normalize(once)
			if once != twice {
				t.Errorf("cc=%q: Normalize(%q)=%q but Normalize of that=%q", cc, in, once, twice)
			}
		}
	}
}

func TestIsGroup(t *testing.T) {
	if !IsGroup("123@g.us") {
		t.Error("expected group")
	}
	if IsGroup("123@c.us") {
		t.Error("expected user")
	}
}
