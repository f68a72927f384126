package course

import (
	"regexp"
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "simple", title: "NCEA Level 2 Maths", want: "ncea-level-2-maths"},
		{name: "macrons", title: "Te Reo Māori for Beginners", want: "te-reo-maori-for-beginners"},
		{name: "punctuation", title: "  Piano -- Grade 5 (ABRSM)! ", want: "piano-grade-5-abrsm"},
		{name: "accents", title: "Français à l'école", want: "francais-a-l-ecole"},
		{name: "no latin", title: "数学", want: ""},
		{name: "truncated", title: strings.Repeat("ab ", 40), want: strings.TrimSuffix(strings.Repeat("ab-", 20), "-")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.title); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func Test_newSlug(t *testing.T) {
	re := regexp.MustCompile(`^ncea-physics-[0-9a-f]{8}$`)
	s1, s2 := newSlug("NCEA Physics"), newSlug("NCEA Physics")
	if !re.MatchString(s1) {
		t.Errorf("newSlug() = %q, want match %s", s1, re)
	}
	if s1 == s2 {
		t.Errorf("newSlug() returned the same slug twice: %q", s1)
	}
	if got := newSlug("数学"); !strings.HasPrefix(got, "course-") {
		t.Errorf("newSlug() = %q, want course- prefix", got)
	}
}
