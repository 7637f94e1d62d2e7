package ingest_test

import (
	"testing"

	"newsboy/internal/ingest"
	"newsboy/internal/store"
)

func TestDeriveDisplayMode(t *testing.T) {
	cases := []struct {
		name     string
		content  store.ContentType
		hasImage bool
		width    int
		height   int
		want     store.DisplayMode
	}{
		{"no image", store.ContentArticle, false, 1200, 400, store.DisplayCrayon},
		{"webcomic wide", store.ContentWebcomic, true, 801, 300, store.DisplayWide},
		{"webcomic at threshold", store.ContentWebcomic, true, 800, 100, store.DisplayStandard},
		{"webcomic unknown size", store.ContentWebcomic, true, 0, 0, store.DisplayStandard},
		{"article wide", store.ContentArticle, true, 1600, 900, store.DisplayWide},
		{"article tall", store.ContentArticle, true, 600, 1000, store.DisplayTall},
		{"article square", store.ContentArticle, true, 500, 500, store.DisplayStandard},
		{"article aspect exactly 1.5", store.ContentArticle, true, 150, 100, store.DisplayStandard},
		{"article missing height", store.ContentArticle, true, 2000, 0, store.DisplayStandard},
		{"mixed treated as article", store.ContentMixed, true, 1000, 2000, store.DisplayTall},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ingest.DeriveDisplayMode(tc.content, tc.hasImage, tc.width, tc.height)
			if got != tc.want {
				t.Fatalf("DeriveDisplayMode = %q, want %q", got, tc.want)
			}
		})
	}
}
