package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

// Extraction modes.
const (
	ModeSelector    = "selector"
	ModeMain        = "main"
	ModeReadability = "readability"
)

type LoaderConfig struct {
	URL               string
	Mode              string
	Selector          string  // CSS selector used in selector mode
	MaxDepth          int     // 0 loads only URL
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	UserAgent         string
	Client            *http.Client
	OnProgress        func(url string)
}

// Loader fetches a web page, and optionally the same-host pages it links
// to, and turns each one into a document.
type Loader struct {
	config   LoaderConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string
}

func NewWithConfig(config LoaderConfig) (*Loader, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Mode == "" {
		config.Mode = ModeSelector
	}
	if config.Selector == "" {
		config.Selector = "body"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.UserAgent == "" {
		config.UserAgent = "ragpage/1.0"
	}

	switch config.Mode {
	case ModeSelector, ModeMain, ModeReadability:
	default:
		return nil, fmt.Errorf("unknown extraction mode %q", config.Mode)
	}

	parsedURL, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", config.URL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("url %q must be http or https", config.URL)
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Loader{
		config:   config,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
	}, nil
}

func New(pageURL string) (*Loader, error) {
	return NewWithConfig(LoaderConfig{URL: pageURL})
}

// Load fetches the configured page. A failure on the root page is returned;
// failures on linked pages are logged and skipped.
func (l *Loader) Load(ctx context.Context) ([]schema.Document, error) {
	var documents []schema.Document
	visited := make(map[string]bool)

	if err := l.loadRecursive(ctx, l.config.URL, 0, visited, &documents); err != nil {
		return nil, err
	}
	return documents, nil
}

func (l *Loader) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Host != l.baseHost {
		return false
	}

	urlPath := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range l.config.AllowedExtensions {
		// "" allows paths without an extension, such as /docs/intro.
		if allowedExt == "" {
			validExt = path.Ext(urlPath) == ""
		} else {
			validExt = strings.HasSuffix(urlPath, allowedExt)
		}
		if validExt {
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range l.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func cleanContent(content string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(content), " "))
}

func (l *Loader) extractSelector(doc *goquery.Document) string {
	return doc.Find(l.config.Selector).Text()
}

func (l *Loader) extractMainContent(doc *goquery.Document) string {
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			if text := selected.First().Text(); strings.TrimSpace(text) != "" {
				return text
			}
		}
	}

	return doc.Find("body").Text()
}

func (l *Loader) fetch(ctx context.Context, urlStr string) (*http.Response, []byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", l.config.UserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", urlStr, err)
	}

	return resp, body, nil
}

func (l *Loader) loadRecursive(ctx context.Context, urlStr string, depth int, visited map[string]bool, documents *[]schema.Document) error {
	if depth > l.config.MaxDepth || visited[urlStr] {
		return nil
	}

	// The root page is always fetched; filters only apply to followed links.
	if depth > 0 && !l.shouldProcessURL(urlStr) {
		return nil
	}

	visited[urlStr] = true
	if l.config.OnProgress != nil {
		l.config.OnProgress(urlStr)
	}

	resp, body, err := l.fetch(ctx, urlStr)
	if err != nil {
		return err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", urlStr, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	var content string
	switch l.config.Mode {
	case ModeMain:
		content = l.extractMainContent(doc)
	case ModeReadability:
		pageURL, _ := url.Parse(urlStr)
		article, err := readability.FromReader(bytes.NewReader(body), pageURL)
		if err != nil {
			return fmt.Errorf("extracting article from %s: %w", urlStr, err)
		}
		content = article.TextContent
		if t := strings.TrimSpace(article.Title); t != "" {
			title = t
		}
	default:
		content = l.extractSelector(doc)
	}

	*documents = append(*documents, schema.Document{
		PageContent: cleanContent(content),
		Metadata: map[string]any{
			"source":       urlStr,
			"title":        title,
			"depth":        depth,
			"contentType":  resp.Header.Get("Content-Type"),
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	})

	if depth >= l.config.MaxDepth {
		return nil
	}

	base, err := url.Parse(urlStr)
	if err != nil {
		return nil
	}

	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")

		ref, err := url.Parse(href)
		if err != nil {
			log.Printf("Error parsing URL: %v", err)
			return
		}
		next := base.ResolveReference(ref)
		next.Fragment = ""

		if err := l.loadRecursive(ctx, next.String(), depth+1, visited, documents); err != nil {
			log.Printf("Error loading URL: %v", err)
		}
	})

	return nil
}
