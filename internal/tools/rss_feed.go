package tools

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// RSSFeedTool fetches and parses RSS, Atom, and JSON feeds without
// spending model tokens on raw XML.
type RSSFeedTool struct{}

func (r *RSSFeedTool) Name() string { return "fetch_rss" }

func (r *RSSFeedTool) Description() string {
	return "Fetch and parse an RSS, Atom, or JSON feed. Returns items with title, link, published date, and summary."
}

func (r *RSSFeedTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Feed URL",
			},
			"max_items": map[string]any{
				"type":        "number",
				"description": "Maximum number of items to return (default: all)",
			},
		},
		"required": []any{"url"},
	}
}

type rssFeedArgs struct {
	URL      string `json:"url"`
	MaxItems int    `json:"max_items"`
}

func (r *RSSFeedTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	var args rssFeedArgs
	if err := decodeArgs(input, &args); err != nil {
		return nil, err
	}
	if args.URL == "" {
		return nil, fmt.Errorf("url is required")
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	fp := gofeed.NewParser()
	fp.Client = &http.Client{Timeout: requestTimeout}

	feed, err := fp.ParseURLWithContext(args.URL, reqCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	var items []map[string]any
	for _, item := range feed.Items {
		published := item.Published
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.Format(time.RFC3339)
		}
		items = append(items, map[string]any{
			"title":     item.Title,
			"link":      item.Link,
			"published": published,
			"summary":   item.Description,
		})
		if args.MaxItems > 0 && len(items) >= args.MaxItems {
			break
		}
	}

	return map[string]any{
		"feed_title": feed.Title,
		"items":      items,
		"item_count": len(items),
	}, nil
}
