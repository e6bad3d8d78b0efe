package portal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ago-backup/internal/backup"

	"golang.org/x/sync/errgroup"
)

// metadataWorkers bounds concurrent service metadata requests during a search
const metadataWorkers = 4

type searchResponse struct {
	Total     int            `json:"total"`
	Start     int            `json:"start"`
	Num       int            `json:"num"`
	NextStart int            `json:"nextStart"`
	Results   []searchResult `json:"results"`
}

type searchResult struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Owner             string   `json:"owner"`
	Type              string   `json:"type"`
	URL               string   `json:"url"`
	Snippet           string   `json:"snippet"`
	OwnerFolder       string   `json:"ownerFolder"`
	GroupDesignations string   `json:"groupDesignations"`
	TypeKeywords      []string `json:"typeKeywords"`
	Modified          int64    `json:"modified"`
}

func (r searchResult) toItem() *backup.CatalogItem {
	return &backup.CatalogItem{
		ID:                r.ID,
		Title:             r.Title,
		Owner:             r.Owner,
		Type:              r.Type,
		URL:               r.URL,
		Snippet:           r.Snippet,
		OwnerFolder:       r.OwnerFolder,
		GroupDesignations: r.GroupDesignations,
		TypeKeywords:      r.TypeKeywords,
		Modified:          time.UnixMilli(r.Modified),
	}
}

type serviceLayers struct {
	Layers []backup.Descriptor `json:"layers"`
	Tables []backup.Descriptor `json:"tables"`
}

// Search pages through the portal search API and loads the layer and table
// metadata of every result. A metadata failure is recorded on the item and
// does not fail the search.
func (c *Client) Search(ctx context.Context, query backup.SearchQuery) ([]*backup.CatalogItem, error) {
	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = backup.DefaultMaxResults
	}

	var items []*backup.CatalogItem
	start := 1
	for len(items) < maxResults {
		num := c.config.PageSize
		if remaining := maxResults - len(items); remaining < num {
			num = remaining
		}

		params := url.Values{}
		params.Set("q", query.Query)
		params.Set("num", strconv.Itoa(num))
		params.Set("start", strconv.Itoa(start))
		if query.SortField != "" {
			params.Set("sortField", query.SortField)
		}
		if query.SortOrder != "" {
			params.Set("sortOrder", query.SortOrder)
		}

		var page searchResponse
		if err := c.read(ctx, "search", c.baseURL+"/search", params, &page); err != nil {
			return nil, err
		}

		for _, r := range page.Results {
			if len(items) >= maxResults {
				break
			}
			items = append(items, r.toItem())
		}

		if page.NextStart <= 0 || len(page.Results) == 0 {
			break
		}
		start = page.NextStart
	}

	if err := c.loadMetadata(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) loadMetadata(ctx context.Context, items []*backup.CatalogItem) error {
	g := new(errgroup.Group)
	g.SetLimit(metadataWorkers)

	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.loadItemMetadata(ctx, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *Client) loadItemMetadata(ctx context.Context, item *backup.CatalogItem) {
	if item.URL == "" {
		item.MetadataErr = fmt.Errorf("item %s has no service URL", item.ID)
		return
	}

	var resp serviceLayers
	endpoint := strings.TrimRight(item.URL, "/") + "/layers"
	if err := c.read(ctx, "layers", endpoint, nil, &resp); err != nil {
		item.MetadataErr = err
		c.logger.WithFields(map[string]interface{}{
			"item_id": item.ID,
			"title":   item.Title,
			"error":   err.Error(),
		}).Warn("Failed to load service metadata")
		return
	}

	item.Layers = resp.Layers
	item.Tables = resp.Tables
}
