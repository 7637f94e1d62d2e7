package feeds

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"golang.org/x/net/html"
)

type image struct {
	url    string
	width  int
	height int
}

// pickImage walks the image sources in priority order: media:content,
// media:thumbnail, image enclosures, the parsed item image, and finally the
// first <img> in the item body.
func pickImage(item *gofeed.Item, pageURL string) image {
	if img, ok := mediaImage(item.Extensions, "content"); ok {
		return resolveImage(img, pageURL)
	}
	if img, ok := mediaImage(item.Extensions, "thumbnail"); ok {
		return resolveImage(img, pageURL)
	}
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enc.Type), "image/") {
			return resolveImage(image{url: enc.URL}, pageURL)
		}
	}
	if item.Image != nil && strings.TrimSpace(item.Image.URL) != "" {
		return resolveImage(image{url: item.Image.URL}, pageURL)
	}
	for _, body := range []string{item.Description, item.Content} {
		if src := firstImgSrc(body); src != "" {
			return resolveImage(image{url: src}, pageURL)
		}
	}
	return image{}
}

func mediaImage(extensions ext.Extensions, name string) (image, bool) {
	media, ok := extensions["media"]
	if !ok {
		return image{}, false
	}
	candidates := append([]ext.Extension(nil), media[name]...)
	// media:group wraps alternates in some feeds.
	for _, group := range media["group"] {
		candidates = append(candidates, group.Children[name]...)
	}
	for _, candidate := range candidates {
		src := strings.TrimSpace(candidate.Attrs["url"])
		if src == "" {
			continue
		}
		if medium := candidate.Attrs["medium"]; medium != "" && medium != "image" {
			continue
		}
		if typ := candidate.Attrs["type"]; typ != "" && !strings.HasPrefix(strings.ToLower(typ), "image/") {
			continue
		}
		return image{
			url:    src,
			width:  atoiOrZero(candidate.Attrs["width"]),
			height: atoiOrZero(candidate.Attrs["height"]),
		}, true
	}
	return image{}, false
}

func firstImgSrc(fragment string) string {
	if !strings.Contains(fragment, "<img") && !strings.Contains(fragment, "<IMG") {
		return ""
	}
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "img" {
				continue
			}
			for _, attr := range token.Attr {
				if attr.Key == "src" && strings.TrimSpace(attr.Val) != "" {
					return strings.TrimSpace(attr.Val)
				}
			}
		}
	}
}

func resolveImage(img image, pageURL string) image {
	ref, err := url.Parse(strings.TrimSpace(img.url))
	if err != nil {
		return image{}
	}
	if !ref.IsAbs() {
		base, err := url.Parse(pageURL)
		if err != nil || !base.IsAbs() {
			return image{}
		}
		ref = base.ResolveReference(ref)
	}
	img.url = ref.String()
	return img
}

func atoiOrZero(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
