package sync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fmsync/fmsync/internal/config"
	"github.com/fmsync/fmsync/internal/core"
	"github.com/fmsync/fmsync/internal/endpoint"
	"github.com/fmsync/fmsync/internal/state"
)

// TimestampLayout is the FileMaker wire format for timestamp fields.
const TimestampLayout = "01/02/2006 15:04:05"

// WatermarkFloor substitutes for an empty persisted watermark; no real
// record predates it.
const WatermarkFloor = "01/01/2000 00:00:00"

// FilterFor derives the lower-bound find criterion for the next fetch.
// Returns nil on the first run (no prior state), so the initial sync
// reads everything.
func FilterFor(st *state.IncrementalState, field string) *config.QueryCriterion {
	if st == nil || field == "" {
		return nil
	}
	last, ok := st.LastValues[field]
	if !ok {
		return nil
	}
	if last == "" {
		last = WatermarkFloor
	}
	return &config.QueryCriterion{
		FieldName:    field,
		FindCriteria: ">=" + last,
	}
}

type valueClass int

const (
	classUnknown valueClass = iota
	classTimestamp
	classNumber
	classString
)

func (c valueClass) String() string {
	switch c {
	case classTimestamp:
		return "timestamp"
	case classNumber:
		return "number"
	case classString:
		return "string"
	}
	return "unknown"
}

// Watermark tracks the maximum observed value of one incremental field
// while a run streams records. It is not safe for concurrent use.
type Watermark struct {
	field string
	class valueClass
	max   string
	seen  bool
}

// NewWatermark creates a tracker for the given field. An empty field name
// yields a tracker that observes nothing.
func NewWatermark(field string) *Watermark {
	return &Watermark{field: field}
}

// Observe folds one raw record into the running maximum. Records without
// the field, or with an empty value, are skipped. Values of a different
// comparison class than previously seen are a configuration error.
func (w *Watermark) Observe(rec endpoint.Record) error {
	if w.field == "" {
		return nil
	}
	raw, ok := rec[w.field]
	if !ok {
		return nil
	}
	value := strings.TrimSpace(fmt.Sprint(raw))
	if value == "" {
		return nil
	}

	class := classify(value)
	if w.class == classUnknown {
		w.class = class
	} else if w.class != class {
		return core.ConfigErrorf("incremental field %q mixes %s and %s values; watermarks require a single comparable type",
			w.field, w.class, class)
	}

	if !w.seen {
		w.max, w.seen = value, true
		return nil
	}
	greater, err := compare(w.class, value, w.max)
	if err != nil {
		return err
	}
	if greater {
		w.max = value
	}
	return nil
}

// Advance returns the state with the watermark moved to the observed
// maximum. With zero observations the prior state is returned unchanged,
// so an empty fetch never regresses the watermark.
func (w *Watermark) Advance(prior *state.IncrementalState) *state.IncrementalState {
	if !w.seen {
		return prior
	}
	next := prior.Clone()
	if next == nil {
		next = &state.IncrementalState{}
	}
	if next.LastValues == nil {
		next.LastValues = make(map[string]string, 1)
	}
	next.LastValues[w.field] = w.max
	return next
}

func classify(value string) valueClass {
	if _, err := time.Parse(TimestampLayout, value); err == nil {
		return classTimestamp
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return classNumber
	}
	return classString
}

func compare(class valueClass, a, b string) (bool, error) {
	switch class {
	case classTimestamp:
		ta, err := time.Parse(TimestampLayout, a)
		if err != nil {
			return false, core.ConfigErrorf("parse timestamp %q: %v", a, err)
		}
		tb, err := time.Parse(TimestampLayout, b)
		if err != nil {
			return false, core.ConfigErrorf("parse timestamp %q: %v", b, err)
		}
		return ta.After(tb), nil
	case classNumber:
		fa, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return false, core.ConfigErrorf("parse number %q: %v", a, err)
		}
		fb, err := strconv.ParseFloat(b, 64)
		if err != nil {
			return false, core.ConfigErrorf("parse number %q: %v", b, err)
		}
		return fa > fb, nil
	default:
		return a > b, nil
	}
}
