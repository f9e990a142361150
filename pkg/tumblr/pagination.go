package tumblr

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
)

const (
	// PageSize is the number of items requested per page
	PageSize = 20
	// Unlimited fetches until the server-reported total is reached
	Unlimited = -1
)

// PageFunc receives the items of one page that were not seen before
type PageFunc func(ctx context.Context, items []json.RawMessage) error

// ArrayOptions describes a paginated collection
type ArrayOptions struct {
	// KeyField identifies an item, e.g. id_string
	KeyField string
	// TotalField names the server-reported total in the response
	TotalField string
	// ItemsField names the item array in the response
	ItemsField string
	// Limit caps the number of items returned. Zero or negative means
	// Unlimited.
	Limit  int
	Offset int
	Params map[string]any
	// OnPage is called after every page. Its error ends the call and is
	// returned unchanged.
	OnPage PageFunc
}

// APIArrayCall pages through a collection, PageSize items at a time,
// dropping items whose key was already seen during this call. It stops
// once the total (or Limit) is reached or a page brings nothing new.
func (c *Client) APIArrayCall(ctx context.Context, path string, opts ArrayOptions) ([]json.RawMessage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = Unlimited
	}

	seen := make(map[string]struct{})
	var items []json.RawMessage
	offset := opts.Offset

	for {
		resp, err := c.APICall(ctx, path, pageParams(opts.Params, offset))
		if err != nil {
			return nil, err
		}

		page := gjson.ParseBytes(resp)
		total := page.Get(opts.TotalField)

		var fresh []json.RawMessage
		page.Get(opts.ItemsField).ForEach(func(_, item gjson.Result) bool {
			key := itemKey(item, opts.KeyField)
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
			fresh = append(fresh, json.RawMessage(item.Raw))
			return true
		})
		items = append(items, fresh...)

		c.logger.DebugWithFields("fetched page", map[string]interface{}{
			"path":   path,
			"offset": offset,
			"new":    len(fresh),
			"total":  total.Int(),
		})

		if opts.OnPage != nil {
			if err := opts.OnPage(ctx, fresh); err != nil {
				return nil, err
			}
		}

		if limit == Unlimited {
			// the total counts from the start of the collection
			if remaining := int(total.Int()) - opts.Offset; total.Exists() && len(items) >= remaining {
				return items[:max(0, remaining)], nil
			}
		} else if len(items) >= limit {
			return items[:limit], nil
		}

		if len(fresh) == 0 {
			c.logger.WarnWithFields("page brought no new items, stopping", map[string]interface{}{
				"path":     path,
				"offset":   offset,
				"received": len(items),
			})
			return items, nil
		}

		offset = opts.Offset + len(items)
	}
}

func pageParams(base map[string]any, offset int) map[string]any {
	params := make(map[string]any, len(base)+2)
	for k, v := range base {
		params[k] = v
	}
	params["limit"] = PageSize
	params["offset"] = offset
	return params
}

// itemKey returns the dedup key of an item. Items without the key field
// are identified by their raw JSON.
func itemKey(item gjson.Result, field string) string {
	if key := item.Get(field); key.Exists() {
		return key.String()
	}
	return item.Raw
}
