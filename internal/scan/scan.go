// Package scan captures the Message Set of a saved or served page without a
// live browser.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/byteowlz/queryflow/internal/capture"
	"github.com/byteowlz/queryflow/internal/dom"
	"github.com/byteowlz/queryflow/internal/store"
)

// ErrSave reports a page that was scanned but whose messages could not be stored.
var ErrSave = errors.New("failed to save messages")

type Options struct {
	Key    string
	Marker dom.Marker
	Fetch  FetchOptions
	Logger *slog.Logger
}

// Result describes one scanned page.
type Result struct {
	Source   store.Source
	Messages []string
}

type Scanner struct {
	fetcher *Fetcher
	store   store.Store
	opts    Options
	logger  *slog.Logger
}

func New(st store.Store, opts Options) *Scanner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scanner{
		fetcher: NewFetcher(opts.Fetch),
		store:   st,
		opts:    opts,
		logger:  opts.Logger.With("component", "scan"),
	}
}

// Scan loads target and replaces the stored Message Set with its messages.
func (s *Scanner) Scan(ctx context.Context, target string) (*Result, error) {
	html, pageURL, err := s.fetcher.Load(ctx, target)
	if err != nil {
		return nil, err
	}

	doc, err := dom.NewStaticDocumentFromString(html, s.opts.Marker)
	if err != nil {
		return nil, err
	}
	src := Describe(html, pageURL)

	pipeline := capture.New(doc, nil, s.store, capture.Options{
		Key:    s.opts.Key,
		Logger: s.opts.Logger,
		Source: func(context.Context) (store.Source, error) { return src, nil },
	})
	messages, err := pipeline.Extract(ctx)
	if err != nil {
		if messages != nil {
			return nil, fmt.Errorf("%w: %w", ErrSave, err)
		}
		return nil, err
	}

	s.logger.Info("scanned page", "url", pageURL, "messages", len(messages))
	src.Count = len(messages)
	return &Result{Source: src, Messages: messages}, nil
}

// Describe extracts the title and canonical URL of a page. The title comes
// from readability and falls back to Open Graph and <title>.
func Describe(html, pageURL string) store.Source {
	src := store.Source{URL: pageURL}

	var base *url.URL
	if u, err := url.Parse(pageURL); err == nil && u.Scheme != "file" {
		base = u
	}
	if article, err := readability.FromReader(strings.NewReader(html), base); err == nil {
		src.Title = strings.TrimSpace(article.Title)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return src
	}
	if src.Title == "" {
		src.Title = findMetaContent(doc, "og:title")
	}
	if src.Title == "" {
		src.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if canonical := canonicalURL(doc); canonical != "" {
		src.URL = canonical
	}
	return src
}

func canonicalURL(doc *goquery.Document) string {
	if u := findMetaContent(doc, "og:url"); u != "" {
		return u
	}
	return strings.TrimSpace(doc.Find("link[rel='canonical']").AttrOr("href", ""))
}

func findMetaContent(doc *goquery.Document, prop string) string {
	if content := doc.Find(fmt.Sprintf("meta[name='%s']", prop)).AttrOr("content", ""); content != "" {
		return strings.TrimSpace(content)
	}
	// Open Graph tags use the property attribute
	if content := doc.Find(fmt.Sprintf("meta[property='%s']", prop)).AttrOr("content", ""); content != "" {
		return strings.TrimSpace(content)
	}
	return ""
}
