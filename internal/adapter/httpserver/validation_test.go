package httpserver

import "testing"

func Test_ValidateJobID(t *testing.T) {
	cases := []struct {
		name  string
		id    string
		valid bool
	}{
		{"simple", "job-123", true},
		{"underscore", "job_123", true},
		{"empty", "", false},
		{"slash", "a/b", false},
		{"space", "a b", false},
		{"too_long", string(make([]byte, 101)), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ValidateJobID(c.id)
			if got.Valid != c.valid {
				t.Fatalf("ValidateJobID(%q): got %v want %v", c.id, got.Valid, c.valid)
			}
		})
	}
}

func Test_ValidateStage(t *testing.T) {
	for _, s := range []string{"", "submitted", "jdExtracted", "resumesParsed", "scored", "reported", "failed"} {
		if res := ValidateStage(s); !res.Valid {
			t.Fatalf("stage %q should be valid", s)
		}
	}
	if res := ValidateStage("done"); res.Valid {
		t.Fatalf("unknown stage should be invalid")
	}
}

func Test_SanitizeString(t *testing.T) {
	if got := SanitizeString("  hi\x00there  "); got != "hithere" {
		t.Fatalf("got %q", got)
	}
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	if got := SanitizeString(string(long)); len(got) != 1000 {
		t.Fatalf("length bound: got %d", len(got))
	}
}
