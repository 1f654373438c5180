package blobstore

import (
	"context"

	"github.com/Agronaut41/admin-cc/internal/models"
	"github.com/Agronaut41/admin-cc/internal/store"
)

// DefaultPageSize is the number of catalog entries fetched per page.
const DefaultPageSize = 100

// Filter selects blobs for List.
type Filter struct {
	MediaTypePrefix   string
	ExcludeMediaTypes []string
	PageSize          int
}

// Cursor iterates over catalog entries in id order. Pages are fetched on
// demand and no database cursor stays open between calls to Next, so the
// caller may read, write and delete blobs while iterating.
//
//	cur := bs.List(ctx, blobstore.Filter{MediaTypePrefix: "image/"})
//	defer cur.Close()
//	for cur.Next() {
//		blob := cur.Blob()
//	}
//	if err := cur.Err(); err != nil {
//		// handle error
//	}
type Cursor struct {
	ctx     context.Context // carried so Next respects cancellation
	bs      *Store
	filter  store.BlobFilter
	page    []models.Blob
	pos     int
	current models.Blob
	last    bool
	err     error
	closed  bool
}

// List returns a cursor over blobs matching f.
func (s *Store) List(ctx context.Context, f Filter) *Cursor {
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Cursor{
		ctx: ctx,
		bs:  s,
		filter: store.BlobFilter{
			MediaTypePrefix:   f.MediaTypePrefix,
			ExcludeMediaTypes: append([]string(nil), f.ExcludeMediaTypes...),
			Limit:             pageSize,
		},
	}
}

// Next advances to the next blob.
func (c *Cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos >= len(c.page) {
		if c.last {
			return false
		}
		if !c.fetch() {
			return false
		}
	}
	c.current = c.page[c.pos]
	c.pos++
	return true
}

func (c *Cursor) fetch() bool {
	catalog, err := c.bs.backend(c.ctx)
	if err != nil {
		c.err = err
		return false
	}
	page, err := catalog.ListBlobs(c.ctx, c.filter)
	if err != nil {
		c.err = err
		return false
	}
	c.page = page
	c.pos = 0
	if len(page) < c.filter.Limit {
		c.last = true
	}
	if len(page) == 0 {
		return false
	}
	c.filter.AfterID = page[len(page)-1].ID
	return true
}

// Blob returns the current entry. Only valid after Next returns true.
func (c *Cursor) Blob() models.Blob {
	return c.current
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close stops the iteration. Safe to call multiple times.
func (c *Cursor) Close() error {
	c.closed = true
	c.page = nil
	return nil
}
