package mediathek

import (
	"context"
	"strings"
	"time"
)

// SearchParams is a comma-separated term search as used by subscriptions.
type SearchParams struct {
	Title    string
	Topic    string
	Channel  string
	Combined string // matched against title and topic

	MinDuration  *int
	MaxDuration  *int
	MinBroadcast *time.Time
	MaxBroadcast *time.Time
	Future       bool

	PageSize int
	MaxPages int
}

// BuildQueries turns the comma-separated terms into query fields.
func (p SearchParams) BuildQueries() []QueryField {
	var out []QueryField
	add := func(input string, fields ...Field) {
		for _, term := range splitTerms(input) {
			out = append(out, QueryField{Fields: fields, Query: term})
		}
	}
	add(p.Title, FieldTitle)
	add(p.Topic, FieldTopic)
	add(p.Channel, FieldChannel)
	add(p.Combined, FieldTitle, FieldTopic)
	return out
}

// SearchAll pages through the results of p until the reported total is
// reached or MaxPages pages were fetched. Broadcast date bounds are applied
// to the collected items.
func (c *Client) SearchAll(ctx context.Context, p SearchParams) ([]ResultItem, error) {
	queries := p.BuildQueries()
	if len(queries) == 0 {
		return []ResultItem{}, nil
	}

	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = 5
	}

	var all []ResultItem
	for page := 0; page < maxPages; page++ {
		offset := page * pageSize
		res, err := c.Search(ctx, Query{
			Queries:     queries,
			Offset:      offset,
			Size:        pageSize,
			MinDuration: p.MinDuration,
			MaxDuration: p.MaxDuration,
			Future:      p.Future,
		})
		if err != nil {
			return nil, err
		}

		for _, item := range res.Items {
			if inBroadcastWindow(item.Timestamp, p.MinBroadcast, p.MaxBroadcast) {
				all = append(all, item)
			}
		}

		if len(res.Items) == 0 || offset+pageSize >= res.Info.TotalResults {
			break
		}
	}
	return all, nil
}

func inBroadcastWindow(ts time.Time, minTS, maxTS *time.Time) bool {
	if minTS != nil && ts.Before(*minTS) {
		return false
	}
	if maxTS != nil && ts.After(*maxTS) {
		return false
	}
	return true
}

func splitTerms(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
