// Package refindex rewrites the records that point at a blob by locator.
//
// Two kinds of record hold locators: cacambas carry a single image_url and
// orders carry an image_urls array. Neither has a foreign key into the blob
// catalog, so a locator swap is applied by value.
package refindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Agronaut41/admin-cc/internal/store"
)

// ErrRewrite matches every *RewriteError.
var ErrRewrite = errors.New("reference rewrite failed")

// Counts is how many records a rewrite touched, per record kind.
type Counts struct {
	SingleFieldUpdates int `json:"single_field_updates" yaml:"single_field_updates"`
	ArrayFieldUpdates  int `json:"array_field_updates" yaml:"array_field_updates"`
}

// Total is the sum of both kinds.
func (c Counts) Total() int {
	return c.SingleFieldUpdates + c.ArrayFieldUpdates
}

// RewriteError reports a rewrite that stopped part way. Counts holds what was
// applied before the failure.
type RewriteError struct {
	Old    string
	New    string
	Counts Counts
	Err    error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewrite %s -> %s (applied %d single, %d array): %v",
		e.Old, e.New, e.Counts.SingleFieldUpdates, e.Counts.ArrayFieldUpdates, e.Err)
}

func (e *RewriteError) Unwrap() error { return e.Err }

func (e *RewriteError) Is(target error) bool { return target == ErrRewrite }

// Index rewrites and counts locator references.
type Index struct {
	refs   store.ReferenceStore
	logger *slog.Logger
}

// New returns an Index over refs.
func New(refs store.ReferenceStore, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{refs: refs, logger: logger.With("component", "refindex")}
}

// Rewrite points every reference to oldLocator at newLocator.
//
// Single-field records are updated in one statement. Each order whose array
// contains oldLocator is read, every occurrence is replaced in place, and the
// whole array is written back. The per-order read-modify-write is not atomic
// against concurrent writers to the same order.
func (x *Index) Rewrite(ctx context.Context, oldLocator, newLocator string) (Counts, error) {
	var counts Counts
	fail := func(err error) (Counts, error) {
		rerr := &RewriteError{Old: oldLocator, New: newLocator, Counts: counts, Err: err}
		x.logger.Error("reference rewrite failed",
			"old", oldLocator,
			"new", newLocator,
			"single_field_updates", counts.SingleFieldUpdates,
			"array_field_updates", counts.ArrayFieldUpdates,
			"error", err)
		return counts, rerr
	}

	if oldLocator == "" || newLocator == "" {
		return fail(fmt.Errorf("old and new locators are required"))
	}
	if oldLocator == newLocator {
		return counts, nil
	}

	n, err := x.refs.ReplaceCacambaImageURL(ctx, oldLocator, newLocator)
	if err != nil {
		return fail(fmt.Errorf("update cacambas: %w", err))
	}
	counts.SingleFieldUpdates = int(n)

	orders, err := x.refs.ListOrdersWithImageURL(ctx, oldLocator)
	if err != nil {
		return fail(fmt.Errorf("find orders: %w", err))
	}
	for _, order := range orders {
		urls, replaced := ReplaceAll(order.ImageURLs, oldLocator, newLocator)
		if replaced == 0 {
			continue
		}
		if err := x.refs.SetOrderImageURLs(ctx, order.ID, urls); err != nil {
			return fail(fmt.Errorf("update order %s: %w", order.ID, err))
		}
		counts.ArrayFieldUpdates++
	}

	x.logger.Debug("references rewritten",
		"old", oldLocator,
		"new", newLocator,
		"single_field_updates", counts.SingleFieldUpdates,
		"array_field_updates", counts.ArrayFieldUpdates)
	return counts, nil
}

// Count reports how many records reference locator.
func (x *Index) Count(ctx context.Context, locator string) (Counts, error) {
	n, err := x.refs.CountCacambasWithImageURL(ctx, locator)
	if err != nil {
		return Counts{}, fmt.Errorf("count cacambas: %w", err)
	}
	orders, err := x.refs.ListOrdersWithImageURL(ctx, locator)
	if err != nil {
		return Counts{}, fmt.Errorf("count orders: %w", err)
	}
	return Counts{SingleFieldUpdates: n, ArrayFieldUpdates: len(orders)}, nil
}

// ReplaceAll returns a copy of urls with every element equal to oldURL
// replaced by newURL, and the number of replacements. Order, length and
// duplicates are preserved.
func ReplaceAll(urls []string, oldURL, newURL string) ([]string, int) {
	out := make([]string, len(urls))
	replaced := 0
	for i, u := range urls {
		if u == oldURL {
			out[i] = newURL
			replaced++
			continue
		}
		out[i] = u
	}
	return out, replaced
}
