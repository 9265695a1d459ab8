package collector

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

// Generic desktop UA: image CDNs commonly reject requests without one.
const downloadUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

var backgroundImageRegex = regexp.MustCompile(`url\(['"]?(https?://[^'")\s]+)['"]?\)`)

// URL fragments that identify tracking pixels and analytics beacons. These
// are rejected before any download is attempted.
var trackingURLFragments = []string{
	"track",
	"pixel",
	"beacon",
	"analytics",
	"1x1",
	"spacer",
	"open.gif",
	"blank.gif",
	"transparent.gif",
	"utm_",
	"mailstat",
	"impression",
}

// extractImageURLs pulls candidate image URLs out of the HTML body: <img>
// sources plus CSS background-image declarations. Order is preserved and
// duplicates are removed.
func extractImageURLs(html string) []string {
	urls := make([]string, 0, 8)
	seen := make(map[string]bool)

	add := func(url string) {
		url = strings.TrimSpace(url)
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return
		}
		if seen[url] {
			return
		}
		seen[url] = true
		urls = append(urls, url)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
			if src, ok := sel.Attr("src"); ok {
				add(src)
			}
		})
		doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
			style, _ := sel.Attr("style")
			for _, m := range backgroundImageRegex.FindAllStringSubmatch(style, -1) {
				add(m[1])
			}
		})
	}

	// Regex fallback catches background images in <style> blocks goquery
	// does not walk.
	for _, m := range backgroundImageRegex.FindAllStringSubmatch(html, -1) {
		add(m[1])
	}

	return urls
}

func isLikelyTrackingPixel(url string) bool {
	lower := strings.ToLower(url)
	for _, fragment := range trackingURLFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// downloadImage fetches one remote image, bounded by the configured
// timeout and byte ceiling. Returns the body and its content type.
func (s *collectorService) downloadImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", downloadUserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Errorf("status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(contentType)
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, "", errors.Errorf("not an image: %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(s.cfg.MaxImageBytes)+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > s.cfg.MaxImageBytes {
		return nil, "", errors.New("image exceeds byte ceiling")
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
		if !strings.HasPrefix(contentType, "image/") {
			return nil, "", errors.Errorf("not an image: %s", contentType)
		}
	}
	return data, contentType, nil
}
