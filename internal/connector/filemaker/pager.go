package filemaker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fmsync/fmsync/internal/core"
	"github.com/fmsync/fmsync/internal/endpoint"
)

// firstOffset is the Data API's 1-based pagination origin.
const firstOffset = 1

// Records returns an iterator over all records matching the payloads.
// Nil payloads list the whole layout. More than one payload (OR-branches)
// is fetched concurrently, branch results merged and de-duplicated by the
// record's native identifier before iteration begins; with one payload the
// iterator pages lazily. De-duplication applies in both modes.
func (c *Client) Records(ctx context.Context, database, layout string, payloads []FindQuery, pageSize int) endpoint.Iterator[RawRecord] {
	if pageSize <= 0 {
		pageSize = c.config.FetchSize
	}
	if len(payloads) > 1 {
		return &parallelIterator{
			client:   c,
			ctx:      ctx,
			database: database,
			layout:   layout,
			payloads: payloads,
			pageSize: pageSize,
		}
	}
	return &recordIterator{
		client:   c,
		ctx:      ctx,
		database: database,
		layout:   layout,
		payloads: payloads,
		pageSize: pageSize,
		offset:   firstOffset,
		seen:     make(map[string]struct{}),
	}
}

// fetchError wraps a transport failure with the payload index and offset the
// caller needs to reason about retrying the run.
func fetchError(payloadIdx, offset int, err error) error {
	code, retryable := core.Classify(err)
	if code == "" || code == core.CodeUnknown {
		code = core.CodeFetchFailed
	}
	return &core.Error{
		Code:      code,
		Retryable: retryable,
		Err:       fmt.Errorf("payload %d, offset %d: %w", payloadIdx, offset, err),
	}
}

// =============================================================================
// SEQUENTIAL ITERATOR
// Pages through payloads one at a time; lazy, finite, non-restartable.
// =============================================================================

type recordIterator struct {
	client   *Client
	ctx      context.Context
	database string
	layout   string
	payloads []FindQuery // nil means list mode
	pageSize int

	payloadIdx int
	offset     int
	buf        []RawRecord
	idx        int
	seen       map[string]struct{}
	table      string
	done       bool
	err        error
}

func (it *recordIterator) Next() bool {
	for {
		if it.idx < len(it.buf) {
			return true
		}
		if it.done || it.err != nil {
			return false
		}
		if err := it.fetchPage(); err != nil {
			it.err = err
			return false
		}
	}
}

func (it *recordIterator) fetchPage() error {
	if err := it.ctx.Err(); err != nil {
		return err
	}

	var page *Page
	var err error
	if len(it.payloads) == 0 {
		page, err = it.client.ListPage(it.ctx, it.database, it.layout, it.offset, it.pageSize)
	} else {
		page, err = it.client.FindPage(it.ctx, it.database, it.layout, it.payloads[it.payloadIdx], it.offset, it.pageSize)
	}
	if err != nil {
		return fetchError(it.payloadIdx, it.offset, err)
	}

	if page.DataInfo.Table != "" {
		it.table = page.DataInfo.Table
	}

	it.buf = it.buf[:0]
	for _, rec := range page.Records {
		if _, dup := it.seen[rec.RecordID]; dup {
			continue
		}
		it.seen[rec.RecordID] = struct{}{}
		it.buf = append(it.buf, rec)
	}
	it.idx = 0

	// A short page ends the current payload.
	if len(page.Records) < it.pageSize {
		it.payloadIdx++
		it.offset = firstOffset
		if len(it.payloads) == 0 || it.payloadIdx >= len(it.payloads) {
			it.done = true
		}
		return nil
	}

	it.offset += it.pageSize
	return nil
}

func (it *recordIterator) Value() RawRecord {
	rec := it.buf[it.idx]
	it.idx++
	return rec
}

func (it *recordIterator) Err() error { return it.err }

func (it *recordIterator) Close() error {
	it.done = true
	return nil
}

// Table reports the source table name observed in page metadata, if any.
func (it *recordIterator) Table() string { return it.table }

// =============================================================================
// PARALLEL ITERATOR
// Fetches OR-branches concurrently, merges, de-duplicates, then iterates.
// Branch ordering in the merged output follows payload order, not fetch
// completion order; record order across branches is unspecified.
// =============================================================================

type parallelIterator struct {
	client   *Client
	ctx      context.Context
	database string
	layout   string
	payloads []FindQuery
	pageSize int

	fetched bool
	records []RawRecord
	table   string
	idx     int
	err     error
}

func (it *parallelIterator) Next() bool {
	if !it.fetched {
		it.fetched = true
		it.records, it.table, it.err = fetchPayloadsParallel(it.ctx, it.client, it.database, it.layout, it.payloads, it.pageSize)
	}
	if it.err != nil {
		return false
	}
	return it.idx < len(it.records)
}

func (it *parallelIterator) Value() RawRecord {
	rec := it.records[it.idx]
	it.idx++
	return rec
}

func (it *parallelIterator) Err() error { return it.err }

func (it *parallelIterator) Close() error {
	it.idx = len(it.records)
	return nil
}

func (it *parallelIterator) Table() string { return it.table }

// fetchPayloadsParallel pages every payload concurrently. Pagination within
// a payload stays sequential (each offset depends on the previous page);
// only the OR-branches run in parallel.
func fetchPayloadsParallel(ctx context.Context, client *Client, database, layout string, payloads []FindQuery, pageSize int) ([]RawRecord, string, error) {
	g, gctx := errgroup.WithContext(ctx)
	branches := make([][]RawRecord, len(payloads))
	tables := make([]string, len(payloads))

	for i := range payloads {
		i := i
		g.Go(func() error {
			var branch []RawRecord
			offset := firstOffset
			for {
				page, err := client.FindPage(gctx, database, layout, payloads[i], offset, pageSize)
				if err != nil {
					return fetchError(i, offset, err)
				}
				if page.DataInfo.Table != "" {
					tables[i] = page.DataInfo.Table
				}
				branch = append(branch, page.Records...)
				if len(page.Records) < pageSize {
					break
				}
				offset += pageSize
			}
			branches[i] = branch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	seen := make(map[string]struct{})
	var merged []RawRecord
	table := ""
	for i, branch := range branches {
		if table == "" && tables[i] != "" {
			table = tables[i]
		}
		for _, rec := range branch {
			if _, dup := seen[rec.RecordID]; dup {
				continue
			}
			seen[rec.RecordID] = struct{}{}
			merged = append(merged, rec)
		}
	}
	return merged, table, nil
}

// TableReporter is implemented by iterators that learn the storage table
// name from page metadata.
type TableReporter interface {
	Table() string
}
