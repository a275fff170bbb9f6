// Package csvsource extracts raw incident events from Socrata CSV exports.
package csvsource

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/jszwec/csvutil"
)

// Reader streams one CSV file of a single incident source as raw events.
// It implements pipeline.BatchExtractor and reports an empty batch once the
// file is exhausted.
type Reader struct {
	source domain.Source
	name   string
	path   string
	dec    *csvutil.Decoder
	closer io.Closer
	row    int64
	done   bool
}

// Open opens a CSV file of the given source.
func Open(path string, source domain.Source) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s csv: %w", source, err)
	}
	r, err := NewReader(f, path, source)
	if err != nil {
		f.Close() //nolint:errcheck // header error takes precedence
		return nil, err
	}
	r.closer = f
	r.path = path
	return r, nil
}

// ErrNotRewindable is returned by Reset on a reader not backed by a file.
var ErrNotRewindable = errors.New("csv reader is not file-backed")

// Reset reopens the underlying file so the next batch starts at the first
// row again.
func (r *Reader) Reset() error {
	if r.path == "" {
		return ErrNotRewindable
	}
	fresh, err := Open(r.path, r.source)
	if err != nil {
		return err
	}
	if err := r.Close(); err != nil {
		fresh.Close() //nolint:errcheck // close error takes precedence
		return fmt.Errorf("close %s csv: %w", r.source, err)
	}
	*r = *fresh
	return nil
}

// NewReader reads CSV rows from r. The name is reported as the event topic.
func NewReader(r io.Reader, name string, source domain.Source) (*Reader, error) {
	if source != domain.SourceCollision && source != domain.SourceCrime {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSource, source)
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Reader{source: source, name: name, done: true}, nil
		}
		return nil, fmt.Errorf("read %s csv header: %w", source, err)
	}
	return &Reader{source: source, name: name, dec: dec}, nil
}

// ExtractBatch decodes up to batchSize rows.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	var batch []domain.RawEvent
	for len(batch) < batchSize && !r.done {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		value, err := r.next()
		if errors.Is(err, io.EOF) {
			r.done = true
			break
		}
		if err != nil {
			return batch, fmt.Errorf("decode %s row %d: %w", r.source, r.row+1, err)
		}
		r.row++

		batch = append(batch, domain.RawEvent{
			Source:  r.source,
			Key:     []byte(r.name + ":" + strconv.FormatInt(r.row, 10)),
			Value:   value,
			Headers: map[string]string{"source": string(r.source)},
			Topic:   r.name,
			Offset:  r.row,
		})
	}
	return batch, nil
}

func (r *Reader) next() ([]byte, error) {
	var rec any
	switch r.source {
	case domain.SourceCollision:
		var c domain.RawCollisionRecord
		if err := r.dec.Decode(&c); err != nil {
			return nil, err
		}
		rec = c
	default:
		var c domain.RawCrimeRecord
		if err := r.dec.Decode(&c); err != nil {
			return nil, err
		}
		rec = c
	}
	return json.Marshal(rec)
}

// Rows returns the number of rows read so far.
func (r *Reader) Rows() int64 { return r.row }

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
