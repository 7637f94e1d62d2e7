package ingest

import "newsboy/internal/store"

const (
	wideAspect          = 1.5
	tallAspect          = 0.7
	webcomicWideWidthPx = 800
)

// DeriveDisplayMode picks a card layout from the item's image. Items without
// an image become crayon cards and wait for an illustration.
func DeriveDisplayMode(contentType store.ContentType, hasImage bool, width, height int) store.DisplayMode {
	if !hasImage {
		return store.DisplayCrayon
	}
	if contentType.ItemType() == store.ContentWebcomic {
		if width > webcomicWideWidthPx {
			return store.DisplayWide
		}
		return store.DisplayStandard
	}
	if width > 0 && height > 0 {
		aspect := float64(width) / float64(height)
		switch {
		case aspect > wideAspect:
			return store.DisplayWide
		case aspect < tallAspect:
			return store.DisplayTall
		}
	}
	return store.DisplayStandard
}
