package extract

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses spaces", "  HVAC   Technician\t wanted  ", "HVAC Technician wanted"},
		{"keeps case", "76 CHANDLER, AZ", "76 CHANDLER, AZ"},
		{"strips control chars", "Welder\x00\x07 jobs\u200b", "Welder jobs"},
		{"keeps line breaks", "Apply to:\r\nWelder\r\n\r\n\r\nPlumber", "Apply to:\nWelder\n\nPlumber"},
		{"drops leading blank lines", "\n\n  \nWelder", "Welder"},
		{"invalid utf8", "Nurse\xff\xfe jobs", "Nurse jobs"},
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

func TestNormalize_HTML(t *testing.T) {
	in := `<div><p>12 Welder jobs</p><script>var x = 1;</script><ul><li>Pipe Welder</li><li>Fabricator</li></ul></div>`

	got := Normalize(in)
	want := "12 Welder jobs\nPipe Welder\nFabricator"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	in := "  Apply to:\n\n\n - RN ,  LPN  \x01"
	once := Normalize(in)
	if twice := Normalize(once); twice != once {
		t.Errorf("expected normalize to be idempotent, got %q then %q", once, twice)
	}
}

func TestFirstSentence(t *testing.T) {
	tests := map[string]string{
		"Airport jobs available now":                    "Airport jobs available now",
		"59 Aircraft Jobs (1 new). Aircraft Technician": "59 Aircraft Jobs (1 new)",
		"Jobs on Indeed.com. Apply to X":                "Jobs on Indeed.com",
		"Now hiring!\nSecond line":                      "Now hiring",
		"":                                              "",
	}
	for in, want := range tests {
		if got := FirstSentence(in); got != want {
			t.Errorf("FirstSentence(%q): expected %q, got %q", in, want, got)
		}
	}
}
