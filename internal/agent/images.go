package agent

import (
	"regexp"
	"strings"
)

var (
	markdownImagePattern = regexp.MustCompile(`!\[[^\]]*\]\(\s*([^)\s]+)(?:\s+"[^"]*")?\s*\)`)
	imageURLPattern      = regexp.MustCompile(`(?i)\bhttps?://[^\s)"'<>]+\.(?:png|jpe?g|gif|webp|svg)(?:\?[^\s)"'<>]*)?`)
	dataURIPattern       = regexp.MustCompile(`data:image/[a-zA-Z+]+;base64,[A-Za-z0-9+/=]+`)
)

// ExtractImages returns image references found in reply text, in order of
// appearance and without duplicates. Markdown images, bare image URLs and
// data URIs are recognized.
func ExtractImages(text string) []string {
	seen := make(map[string]bool)
	images := []string{}
	add := func(ref string) {
		ref = strings.TrimSpace(ref)
		if ref == "" || seen[ref] {
			return
		}
		seen[ref] = true
		images = append(images, ref)
	}

	for _, m := range markdownImagePattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range imageURLPattern.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range dataURIPattern.FindAllString(text, -1) {
		add(m)
	}
	return images
}

// Shape converts raw reply text to the reply requested by opts.
func Shape(text string, opts AskOptions) *Reply {
	if opts.Expect == ExpectImage {
		return &Reply{Images: ExtractImages(text)}
	}
	return &Reply{Text: text}
}
