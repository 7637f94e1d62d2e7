package illustration_test

import (
	"strings"
	"testing"

	"newsboy/internal/illustration"
)

func TestSubject(t *testing.T) {
	cases := map[string]string{
		"The Cat Sat":                                        "cat sat",
		"an Apple a day":                                     "apple a day",
		`"Quoted" Robots`:                                    "quoted robots",
		"Scientists discover: giant squid lives in the deep": "scientists discover",
		"Mayor opens new bridge across the river today":      "mayor opens new bridge across",
		"Breaking, news from the harbour district tonight":   "breaking",
		"  Theatre Reviews  ":                                "theatre reviews",
	}
	for title, want := range cases {
		if got := illustration.Subject(title); got != want {
			t.Fatalf("Subject(%q) = %q, want %q", title, got, want)
		}
	}
}

func TestInputUsesCrayonSettings(t *testing.T) {
	input := illustration.Input("The Moon Landing")
	if !strings.HasPrefix(input.Prompt, "Childlike crayon drawing of moon landing,") {
		t.Fatalf("unexpected prompt %q", input.Prompt)
	}
	if input.Width != 512 || input.Height != 512 || input.NumInferenceSteps != 25 || input.GuidanceScale != 7.5 || input.Scheduler != "K_EULER" {
		t.Fatalf("unexpected settings %+v", input)
	}
	if !strings.Contains(input.NegativePrompt, "photographic") {
		t.Fatalf("unexpected negative prompt %q", input.NegativePrompt)
	}
}
