package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/relmap/internal/changelog"
	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/docstore"
	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/queryir"
	"github.com/roach88/relmap/internal/record"
	"github.com/roach88/relmap/internal/stmt"
	"github.com/roach88/relmap/internal/store"
)

// stmtOptions maps scenario option names to statement compiler options.
var stmtOptions = map[string]stmt.Option{
	"only_modified":         stmt.OnlyModified(),
	"without_cleaner":       stmt.WithoutCleaner(),
	"without_version_check": stmt.WithoutVersionCheck(),
	"with_lazy":             stmt.WithLazy(),
}

// docOptions maps the option names document commands understand.
var docOptions = map[string]docstore.Option{
	"only_modified":         docstore.OnlyModified(),
	"without_version_check": docstore.WithoutVersionCheck(),
}

// Harness runs the steps of one scenario against one record.
//
// Without a store, steps are compiled only: the record is never committed,
// so every write compiles against the loaded state plus the values set so
// far. With a store, each step also executes and the record follows the
// database.
type Harness struct {
	d        dialect.Dialect
	store    *store.Store
	rec      *record.Record
	baseline *record.Record
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each executing scenario runs in a fresh in-memory database for isolation.
func Run(scenario *Scenario) (*Result, error) {
	var st *store.Store
	if scenario.Execute {
		var err error
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}
	return RunWithStore(context.Background(), scenario, st)
}

// RunWithStore executes a scenario, running every step through st when it
// is not nil. The scenario's dialect must match the store's.
//
// Execution flow:
// 1. Compile the CUE record specs and build the record
// 2. Apply the loaded state (and store it when executing)
// 3. Run each step, recording its transcript
// 4. Evaluate assertions against the transcript and the tables
func RunWithStore(ctx context.Context, scenario *Scenario, st *store.Store) (*Result, error) {
	d, err := resolveDialect(scenario.Dialect, st)
	if err != nil {
		return nil, err
	}

	specs, err := LoadRecordSpecs(scenario.Specs)
	if err != nil {
		return nil, err
	}
	spec, ok := specs[scenario.Record]
	if !ok {
		return nil, fmt.Errorf("record %s not defined in %v", scenario.Record, scenario.Specs)
	}

	h := &Harness{
		d:      d,
		store:  st,
		rec:    spec.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	if err := h.load(ctx, scenario.Loaded); err != nil {
		return nil, fmt.Errorf("failed to load initial state: %w", err)
	}

	result := NewResult(d.Name())
	for i, step := range scenario.Steps {
		sr, err := h.runStep(ctx, step)
		if err != nil {
			sr.Error = errorCode(err)
		}
		switch {
		case step.Error != "" && sr.Error != step.Error:
			result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got %q", i+1, step.Op, step.Error, sr.Error))
		case step.Error == "" && err != nil:
			result.AddError(fmt.Sprintf("step %d (%s): %v", i+1, step.Op, err))
		}
		result.AddStep(sr)

		h.logger.Info("step completed",
			"step", i+1,
			"op", step.Op,
			"statements", len(sr.Statements),
			"error", sr.Error,
		)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func resolveDialect(name string, st *store.Store) (dialect.Dialect, error) {
	if name == "" {
		name = dialect.SQLite
	}
	d, err := dialect.ByName(name)
	if err != nil {
		return nil, err
	}
	if st != nil && st.Dialect().Name() != d.Name() {
		return nil, fmt.Errorf("scenario dialect %s does not match store dialect %s", d.Name(), st.Dialect().Name())
	}
	return d, nil
}

// load applies the initial state. When executing, the state is inserted so
// the database holds the loaded rows; the record then carries the stored
// version.
func (h *Harness) load(ctx context.Context, loaded map[string]any) error {
	if loaded != nil {
		if err := docstore.Load(h.rec, toDoc(loaded)); err != nil {
			return err
		}
		h.rec.AcceptChanges()
		if h.store != nil {
			if err := h.store.CreateTables(ctx, h.rec); err != nil {
				return err
			}
			if err := h.store.Insert(ctx, h.rec); err != nil {
				return err
			}
		}
	}
	h.baseline = h.rec.Clone()
	return nil
}

func (h *Harness) runStep(ctx context.Context, step Step) (StepResult, error) {
	sr := StepResult{Op: step.Op}
	if err := applySet(h.rec, step.Set, ""); err != nil {
		return sr, err
	}
	opts, err := compileOptions(step.Options)
	if err != nil {
		return sr, err
	}

	switch step.Op {
	case OpCreate, OpDrop:
		return h.runDDL(ctx, step, sr, opts)
	case OpInsert, OpUpdate, OpReplace, OpDelete, OpSave:
		return h.runWrite(ctx, step, sr, opts)
	case OpSelect:
		return h.runSelect(ctx, sr, opts)
	case OpQuery:
		return h.runQuery(ctx, step, sr, opts)
	case OpDiff:
		return h.runDiff(step, sr)
	case OpDocument:
		return h.runDocument(step, sr)
	default:
		return sr, ir.Errorf(ir.ErrCodeUnsupported, "unknown op %q", step.Op)
	}
}

func (h *Harness) runDDL(ctx context.Context, step Step, sr StepResult, opts []stmt.Option) (StepResult, error) {
	c := stmt.New(h.rec.Clone(), h.d, opts...)
	compile, run := c.Create, h.createTables
	if step.Op == OpDrop {
		compile, run = c.Drop, h.dropTables
	}
	p, err := compile()
	if err != nil {
		return sr, err
	}
	if sr.Statements, err = lines(p); err != nil {
		return sr, err
	}
	if h.store != nil {
		return sr, run(ctx)
	}
	return sr, nil
}

func (h *Harness) createTables(ctx context.Context) error { return h.store.CreateTables(ctx, h.rec) }
func (h *Harness) dropTables(ctx context.Context) error   { return h.store.DropTables(ctx, h.rec) }

func (h *Harness) runWrite(ctx context.Context, step Step, sr StepResult, opts []stmt.Option) (StepResult, error) {
	c := stmt.New(h.rec.Clone(), h.d, opts...)
	var (
		p   *stmt.Plan
		err error
	)
	switch step.Op {
	case OpInsert:
		p, err = c.Insert()
	case OpUpdate:
		p, err = c.Update()
	case OpReplace:
		p, err = c.Replace()
	case OpDelete:
		p, err = c.Delete()
	default:
		p, err = c.Save()
	}
	if err != nil {
		return sr, err
	}
	if sr.Statements, err = lines(p); err != nil {
		return sr, err
	}
	if h.store == nil {
		return sr, nil
	}

	if step.Op == OpSave {
		// Executed saves are audited against the last stored state.
		cs, err := h.store.SaveAudited(ctx, h.baseline, h.rec, opts...)
		if err != nil {
			return sr, err
		}
		if cs != nil {
			sr.Entries = cs.Entries
		}
		h.baseline = h.rec.Clone()
		return sr, nil
	}

	run := map[string]func(context.Context, *record.Record, ...stmt.Option) error{
		OpInsert:  h.store.Insert,
		OpUpdate:  h.store.Update,
		OpReplace: h.store.Replace,
		OpDelete:  h.store.Delete,
	}[step.Op]
	if err := run(ctx, h.rec, opts...); err != nil {
		return sr, err
	}
	h.baseline = h.rec.Clone()
	return sr, nil
}

func (h *Harness) runSelect(ctx context.Context, sr StepResult, opts []stmt.Option) (StepResult, error) {
	l, err := stmt.New(h.rec.Clone(), h.d, opts...).Load()
	if err != nil {
		return sr, err
	}
	sr.Statements = []Line{{SQL: l.Master.SQL, Args: l.Master.Args}}
	if h.store == nil {
		return sr, nil
	}

	if err := h.store.Load(ctx, h.rec, opts...); err != nil {
		return sr, err
	}
	h.baseline = h.rec.Clone()
	row, err := renderRecord(h.rec)
	if err != nil {
		return sr, err
	}
	sr.Rows = []string{row}
	return sr, nil
}

func (h *Harness) runQuery(ctx context.Context, step Step, sr StepResult, opts []stmt.Option) (StepResult, error) {
	proto := h.rec.Clone()
	c := stmt.New(proto, h.d, opts...)
	items, sortSpec, err := filterOf(step, proto, c.Index())
	if err != nil {
		return sr, err
	}
	st, err := c.Query(items, sortSpec)
	if err != nil {
		return sr, err
	}
	sr.Statements = []Line{{SQL: st.SQL, Args: st.Args}}
	if h.store == nil {
		return sr, nil
	}

	found, err := h.store.Find(ctx, proto, store.Query{Items: items, Sort: sortSpec, Limit: step.Limit}, opts...)
	if err != nil {
		return sr, err
	}
	for _, rec := range found {
		row, err := renderRecord(rec)
		if err != nil {
			return sr, err
		}
		sr.Rows = append(sr.Rows, row)
	}
	return sr, nil
}

func (h *Harness) runDiff(step Step, sr StepResult) (StepResult, error) {
	entries, err := changelog.Diff(h.baseline, h.rec)
	if err != nil {
		return sr, err
	}
	if step.Chunk > 0 {
		if entries, err = changelog.Chunk(entries, step.Chunk); err != nil {
			return sr, err
		}
	}
	sr.Entries = entries
	return sr, nil
}

func (h *Harness) runDocument(step Step, sr StepResult) (StepResult, error) {
	var opts []docstore.Option
	for _, name := range step.Options {
		opt, ok := docOptions[name]
		if !ok {
			return sr, ir.Errorf(ir.ErrCodeUnsupported, "option %s does not apply to document commands", name)
		}
		opts = append(opts, opt)
	}

	rec := h.rec.Clone()
	c := docstore.New(rec, opts...)
	var (
		cmd docstore.Command
		err error
	)
	switch step.Command {
	case CommandInsert:
		cmd, err = c.InsertOne()
	case CommandUpdate:
		cmd, err = c.UpdateOne()
	case CommandReplace:
		cmd, err = c.ReplaceOne()
	case CommandDelete:
		cmd, err = c.DeleteOne()
	case CommandFind:
		var items []queryir.Item
		var sortSpec *queryir.SortSpec
		if items, sortSpec, err = filterOf(step, rec, c.Index()); err == nil {
			cmd, err = c.Find(items, sortSpec)
		}
	default:
		cmd, err = c.Save()
	}
	if err != nil {
		return sr, err
	}
	if _, err := docstore.Marshal(cmd); err != nil {
		return sr, fmt.Errorf("encode %s command: %w", cmd.Op, err)
	}
	sr.Command = renderCommand(cmd)
	return sr, nil
}

// filterOf builds the filter items and sort spec of a query against rec,
// resolving names through ix.
func filterOf(step Step, rec *record.Record, ix *record.Index) ([]queryir.Item, *queryir.SortSpec, error) {
	var items []queryir.Item
	if step.Where != "" {
		parsed, err := queryir.Parse(step.Where, ix)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, parsed...)
	}
	if step.Example {
		items = append(items, queryir.Example(rec)...)
	}

	var sortSpec *queryir.SortSpec
	if len(step.Sort) > 0 {
		sortSpec = queryir.NewSort()
		for _, k := range step.Sort {
			e, ok := ix.Lookup(k.Field)
			if !ok {
				return nil, nil, ir.FieldError(ir.ErrCodeUnresolvedField, k.Field, "unknown sort field")
			}
			dir := queryir.Asc
			if k.Desc {
				dir = queryir.Desc
			}
			if e.Array != nil {
				sortSpec.ByArray(e.Array, dir)
			} else {
				sortSpec.By(e.Field, dir)
			}
		}
	}
	return items, sortSpec, nil
}

func compileOptions(names []string) ([]stmt.Option, error) {
	var opts []stmt.Option
	for _, name := range names {
		opt, ok := stmtOptions[name]
		if !ok {
			return nil, ir.Errorf(ir.ErrCodeUnsupported, "unknown option %q", name)
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

// lines drains a plan into transcript lines.
func lines(p *stmt.Plan) ([]Line, error) {
	sts, err := p.Statements()
	if err != nil {
		return nil, err
	}
	out := make([]Line, len(sts))
	for i, st := range sts {
		out[i] = Line{SQL: st.SQL, Args: st.Args}
	}
	return out, nil
}

// errorCode names the failure of a step: the mapping error code, or ERROR
// for backend and I/O failures.
func errorCode(err error) string {
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}

// applySet assigns YAML-decoded values to rec, in key order.
func applySet(rec *record.Record, values map[string]any, prefix string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		raw := values[name]
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		switch {
		case rec.Field(name) != nil:
			if err := setField(rec.Field(name), raw, path); err != nil {
				return err
			}
		case rec.Record(name) != nil:
			sub, ok := raw.(map[string]any)
			if !ok {
				return ir.FieldError(ir.ErrCodeTypeMismatch, path, "expected a map, got %T", raw)
			}
			if err := applySet(rec.Record(name), sub, path); err != nil {
				return err
			}
		case rec.Array(name) != nil:
			if err := setArray(rec.Array(name), raw, path); err != nil {
				return err
			}
		default:
			return ir.FieldError(ir.ErrCodeUnresolvedField, path, "no member %s in %s", name, rec.Name())
		}
	}
	return nil
}

func setField(f *record.Field, raw any, path string) error {
	v, err := ir.FromAny(raw)
	if err != nil {
		return ir.Wrap(ir.ErrCodeTypeMismatch, err, "set %s", path)
	}
	return f.Set(v)
}

// setArray resizes a to the list length, then assigns each element: nil
// makes a hole, an empty map leaves an existing element untouched.
func setArray(a *record.Array, raw any, path string) error {
	list, ok := raw.([]any)
	if !ok && raw != nil {
		return ir.FieldError(ir.ErrCodeTypeMismatch, path, "expected a list, got %T", raw)
	}
	a.Resize(len(list))
	for i, item := range list {
		at := fmt.Sprintf("%s[%d]", path, i)
		if item == nil {
			if err := a.SetNull(i); err != nil {
				return err
			}
			continue
		}
		elem, err := a.Ensure(i)
		if err != nil {
			return err
		}
		if a.IsScalar() {
			if err := setField(elem.Field(record.ScalarElement), item, at); err != nil {
				return err
			}
			continue
		}
		values, ok := item.(map[string]any)
		if !ok {
			return ir.FieldError(ir.ErrCodeTypeMismatch, at, "expected a map, got %T", item)
		}
		if err := applySet(elem, values, at); err != nil {
			return err
		}
	}
	return nil
}

// toDoc adapts a YAML map for docstore.Load, which reads nested maps as is.
func toDoc(m map[string]any) docstore.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := make(docstore.D, 0, len(m))
	for _, k := range keys {
		d = append(d, docstore.E{Key: k, Value: m[k]})
	}
	return d
}
