package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fmsync/fmsync/internal/config"
	"github.com/fmsync/fmsync/internal/connector/filemaker"
	"github.com/fmsync/fmsync/internal/core"
	"github.com/fmsync/fmsync/internal/endpoint"
	"github.com/fmsync/fmsync/internal/sink"
	"github.com/fmsync/fmsync/internal/state"
)

// Table names for metadata-mode output.
const (
	TableLayouts             = "layouts"
	TableLayoutFieldMetadata = "layout_fields_metadata"
)

// Orchestrator drives one sync run end to end: it selects the run mode,
// fetches and normalizes records, writes output tables, and commits
// incremental state exactly once, only after everything else succeeded.
type Orchestrator struct {
	source endpoint.Source
	store  state.Store
	sink   sink.Sink
	logger *zap.Logger
}

// NewOrchestrator wires a run from its collaborators.
func NewOrchestrator(source endpoint.Source, store state.Store, out sink.Sink, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{source: source, store: store, sink: out, logger: logger}
}

// Run executes one sync run. Errors are folded into the returned result;
// a failed run never advances incremental state.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.QueryConfig) *RunResult {
	result := &RunResult{
		RunID:       uuid.New(),
		StartedAt:   time.Now().UTC(),
		TableCounts: make(map[string]int64),
	}
	log := o.logger.With(zap.String("run_id", result.RunID.String()))

	err := o.run(ctx, cfg, result, log)
	result.FinishedAt = time.Now().UTC()
	if err != nil {
		result.Status = StatusFailed
		result.Failure = failureFrom(err)
		log.Error("run failed",
			zap.String("code", string(result.Failure.Code)),
			zap.Bool("retryable", result.Failure.Retryable),
			zap.Error(err))
		return result
	}

	result.Status = StatusDone
	log.Info("run finished", zap.Any("table_counts", result.TableCounts))
	return result
}

func (o *Orchestrator) run(ctx context.Context, cfg *config.QueryConfig, result *RunResult, log *zap.Logger) error {
	if cfg == nil {
		return core.ConfigErrorf("run configuration is missing")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	switch cfg.ObjectType {
	case config.ObjectTypeMetadata:
		return o.runMetadata(ctx, cfg, result, log)
	default:
		return o.runLayoutSync(ctx, cfg, result, log)
	}
}

// runMetadata handles discovery runs. With no field_metadata entries it
// lists every accessible database and layout; otherwise it fetches the
// field schema of each referenced layout.
func (o *Orchestrator) runMetadata(ctx context.Context, cfg *config.QueryConfig, result *RunResult, log *zap.Logger) error {
	if len(cfg.FieldMetadata) == 0 {
		log.Info("listing databases and layouts")
		datasets, err := o.source.ListDatasets(ctx)
		if err != nil {
			return err
		}
		rows := make([]endpoint.Record, 0, len(datasets))
		for _, ds := range datasets {
			rows = append(rows, endpoint.Record{
				"database_name": ds.Database,
				"layout_name":   ds.Name,
			})
		}
		spec := sink.TableSpec{
			Name:    TableLayouts,
			Columns: []string{"database_name", "layout_name"},
			Mode:    sink.Overwrite,
		}
		if err := o.sink.WriteTable(ctx, spec, rows); err != nil {
			return err
		}
		result.TableCounts[TableLayouts] = int64(len(rows))
		return nil
	}

	var rows []endpoint.Record
	for _, ref := range cfg.FieldMetadata {
		log.Info("fetching layout schema",
			zap.String("database", ref.Database),
			zap.String("layout", ref.LayoutName))
		schema, err := o.source.GetSchema(ctx, ref.Database+"/"+ref.LayoutName)
		if err != nil {
			return err
		}
		for _, f := range schema.Fields {
			rows = append(rows, endpoint.Record{
				"database_name": ref.Database,
				"layout_name":   ref.LayoutName,
				"field_name":    f.Name,
				"data_type":     f.DataType,
				"result_type":   f.Result,
				"global":        f.Global,
				"repetitions":   f.Repetitions,
				"max_length":    f.MaxLength,
				"position":      f.Position,
			})
		}
	}
	spec := sink.TableSpec{
		Name: TableLayoutFieldMetadata,
		Columns: []string{
			"database_name", "layout_name", "field_name", "data_type",
			"result_type", "global", "repetitions", "max_length", "position",
		},
		Mode: sink.Overwrite,
	}
	if err := o.sink.WriteTable(ctx, spec, rows); err != nil {
		return err
	}
	result.TableCounts[TableLayoutFieldMetadata] = int64(len(rows))
	return nil
}

// runLayoutSync extracts records from one layout.
func (o *Orchestrator) runLayoutSync(ctx context.Context, cfg *config.QueryConfig, result *RunResult, log *zap.Logger) error {
	key := state.Key{Database: cfg.Database, Layout: cfg.LayoutName}
	log = log.With(zap.String("database", key.Database), zap.String("layout", key.Layout))

	var prior *state.IncrementalState
	var filter *config.QueryCriterion
	field := cfg.IncrementalField()
	if cfg.LoadingOptions.IncrementalFetch {
		var err error
		prior, err = o.store.Get(key)
		if err != nil {
			return core.Wrap(core.CodeStateFailed, true, err)
		}
		filter = FilterFor(prior, field)
		if filter == nil {
			log.Info("no prior watermark, performing initial full fetch")
		} else {
			log.Info("resuming from watermark", zap.String("field", field), zap.String("bound", filter.FindCriteria))
		}
	}

	payloads, err := filemaker.BuildFindPayloads(cfg.QueryGroups, filter)
	if err != nil {
		return err
	}

	hint, schemas, err := o.schemaHint(ctx, key, prior)
	if err != nil {
		return err
	}

	findPayloads := make([]map[string]string, len(payloads))
	for i, p := range payloads {
		findPayloads[i] = p
	}
	iter, err := o.source.Read(ctx, &endpoint.ReadRequest{
		DatasetID:    key.Database + "/" + key.Layout,
		FindPayloads: findPayloads,
		PageSize:     cfg.PageSize,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	watermark := NewWatermark(field)
	var records []endpoint.Record
	var columns []string
	seen := make(map[string]bool)
	if prior != nil {
		// Seed from the last run's layout so column order stays stable.
		for _, col := range prior.Columns {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}

	for iter.Next() {
		raw := iter.Value()
		if cfg.LoadingOptions.IncrementalFetch {
			if err := watermark.Observe(raw); err != nil {
				return err
			}
		}
		normalized, err := Normalize(raw, hint)
		if err != nil {
			return err
		}
		for col := range normalized {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
		records = append(records, normalized)
	}
	if err := iter.Err(); err != nil {
		return err
	}

	mode := sink.Overwrite
	var pkey []string
	if cfg.LoadingOptions.Incremental == 1 {
		mode = sink.Upsert
		for _, k := range cfg.LoadingOptions.Pkey {
			pkey = append(pkey, NormalizeName(k))
		}
	}
	var incrementalFields []string
	if field != "" && cfg.LoadingOptions.IncrementalFetch {
		incrementalFields = append(incrementalFields, NormalizeName(field))
	}

	spec := sink.TableSpec{
		Name:              cfg.LayoutName,
		Columns:           sortColumns(columns, pkey),
		Mode:              mode,
		PrimaryKey:        pkey,
		IncrementalFields: incrementalFields,
	}
	if err := o.sink.WriteTable(ctx, spec, records); err != nil {
		return err
	}
	result.TableCounts[cfg.LayoutName] = int64(len(records))
	log.Info("layout synced", zap.Int("records", len(records)), zap.String("mode", string(mode)))

	// Commit state exactly once, after the sink confirmed durability.
	if cfg.LoadingOptions.IncrementalFetch {
		next := watermark.Advance(prior)
		if next == nil {
			next = &state.IncrementalState{}
		}
		next.Schemas = schemas
		next.Columns = spec.Columns
		if err := o.store.Put(key, next); err != nil {
			return core.Wrap(core.CodeStateFailed, true, err)
		}
	}
	return nil
}

// schemaHint fetches the layout schema for repetition flattening, falling
// back to the schema cached during the prior run if the fetch fails.
func (o *Orchestrator) schemaHint(ctx context.Context, key state.Key, prior *state.IncrementalState) (*SchemaHint, map[string]int, error) {
	schema, err := o.source.GetSchema(ctx, key.Database+"/"+key.Layout)
	if err != nil {
		if prior != nil && prior.Schemas != nil {
			o.logger.Warn("schema fetch failed, using cached schema", zap.Error(err))
			return &SchemaHint{Repetitions: prior.Schemas}, prior.Schemas, nil
		}
		if prior != nil && len(prior.Columns) > 0 {
			o.logger.Warn("schema fetch failed, reconstructing from cached columns", zap.Error(err))
			hint := HintFromColumns(prior.Columns)
			return hint, hint.Repetitions, nil
		}
		return nil, nil, err
	}
	hint := HintFromSchema(schema)
	return hint, hint.Repetitions, nil
}

// sortColumns moves primary key columns to the front and keeps the
// remaining columns in first-seen order.
func sortColumns(columns, pkey []string) []string {
	if len(pkey) == 0 {
		return columns
	}
	isKey := make(map[string]bool, len(pkey))
	out := make([]string, 0, len(columns))
	for _, k := range pkey {
		isKey[k] = true
		out = append(out, k)
	}
	for _, c := range columns {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return out
}
