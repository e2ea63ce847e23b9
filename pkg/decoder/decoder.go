package decoder

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"

	"github.com/ssargent/dbcache/pkg/codec"
	"github.com/ssargent/dbcache/pkg/container"
	"github.com/ssargent/dbcache/pkg/drift"
	"github.com/ssargent/dbcache/pkg/metrics"
	"github.com/ssargent/dbcache/pkg/schema"
)

const (
	sourceDBCache = "dbcache"
	sourceWDB     = "wdb"
)

// Config holds configuration for the decoder
type Config struct {
	Registry      *schema.Registry
	Index         *schema.TableIndex // built from Registry per run when nil
	Engine        *codec.Engine
	Detector      *drift.Detector
	Workers       int // defaults to GOMAXPROCS
	Logger        log.Logger
	Metrics       *metrics.Metrics
	Ambiguous     map[uint32][]container.Shape
	Disambiguator container.Disambiguator
}

// Decoder frames cache files sequentially and decodes their payloads concurrently
type Decoder struct {
	registry      *schema.Registry
	index         *schema.TableIndex
	engine        *codec.Engine
	detector      *drift.Detector
	workers       int
	logger        log.Logger
	metrics       *metrics.Metrics
	ambiguous     map[uint32][]container.Shape
	disambiguator container.Disambiguator
}

// New creates a decoder
func New(config Config) *Decoder {
	d := &Decoder{
		registry:      config.Registry,
		index:         config.Index,
		engine:        config.Engine,
		detector:      config.Detector,
		workers:       config.Workers,
		logger:        config.Logger,
		metrics:       config.Metrics,
		ambiguous:     config.Ambiguous,
		disambiguator: config.Disambiguator,
	}
	if d.registry == nil {
		d.registry = schema.NewRegistry(schema.RegistryConfig{})
	}
	if d.engine == nil {
		d.engine = codec.NewEngine()
	}
	if d.logger == nil {
		d.logger = log.NewNopLogger()
	}
	if d.detector == nil {
		d.detector = drift.NewDetector(drift.DetectorConfig{Engine: d.engine, Logger: d.logger})
	}
	if d.workers <= 0 {
		d.workers = runtime.GOMAXPROCS(0)
	}
	if d.metrics == nil {
		d.metrics = metrics.NewMetrics(nil)
	}
	return d
}

// job is one entry to decode
type job struct {
	entry   *container.RawEntry
	table   string // fixed table name; empty resolves the entry's hash
	version schema.Version
	rv      uint32
	mode    drift.Mode
}

// DecodeFile decodes the DBCache container at path
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading container")
	}
	return d.Decode(ctx, data)
}

// Decode decodes a DBCache container. Only a *container.FormatError or a
// cancelled context is returned as an error; per-record failures are in the results.
func (d *Decoder) Decode(ctx context.Context, data []byte) (*Run, error) {
	start := time.Now()

	r, err := container.NewReader(data, container.ReaderConfig{
		Ambiguous:     d.ambiguous,
		Disambiguator: d.disambiguator,
	})
	if err != nil {
		d.metrics.RecordRun(sourceDBCache, false, time.Since(start))
		return nil, err
	}

	entries, err := r.Entries()
	if err != nil {
		d.metrics.RecordRun(sourceDBCache, false, time.Since(start))
		return nil, err
	}
	level.Debug(d.logger).Log("msg", "framed container", "version", r.Version(), "shape", r.Shape(), "build", r.Build(), "entries", len(entries))

	version := schema.BuildOnly(r.Build())
	jobs := make([]job, len(entries))
	for i, e := range entries {
		jobs[i] = job{entry: e, version: version, mode: drift.ModeStrict}
	}

	return d.run(ctx, sourceDBCache, r.Build(), jobs, start)
}

// DecodeWDBFile decodes the .wdb cache at path
func (d *Decoder) DecodeWDBFile(ctx context.Context, path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading wdb cache")
	}
	return d.DecodeWDB(ctx, data)
}

// DecodeWDB decodes a .wdb cache. Each record is decoded within its declared
// length and the next record starts at the declared end regardless of drift.
func (d *Decoder) DecodeWDB(ctx context.Context, data []byte) (*Run, error) {
	start := time.Now()

	r, err := container.NewWDBReader(data)
	if err != nil {
		d.metrics.RecordRun(sourceWDB, false, time.Since(start))
		return nil, err
	}
	h := r.Header()
	table, ok := h.TableName()
	if !ok {
		d.metrics.RecordRun(sourceWDB, false, time.Since(start))
		return nil, &container.FormatError{Offset: 0, Reason: fmt.Sprintf("unknown wdb identifier %q", h.Identifier)}
	}

	entries, err := r.Entries()
	if err != nil {
		d.metrics.RecordRun(sourceWDB, false, time.Since(start))
		return nil, err
	}

	version := schema.BuildOnly(h.Build)
	jobs := make([]job, len(entries))
	for i, e := range entries {
		jobs[i] = job{
			entry:   e,
			table:   table,
			version: version,
			rv:      h.RecordVersion,
			mode:    drift.ModeReposition,
		}
	}

	return d.run(ctx, sourceWDB, h.Build, jobs, start)
}

func (d *Decoder) run(ctx context.Context, source string, build uint32, jobs []job, start time.Time) (*Run, error) {
	idx := d.index
	if idx == nil {
		var err error
		if idx, err = d.registry.Index(d.detector.StructureNames()...); err != nil {
			d.metrics.RecordRun(source, false, time.Since(start))
			return nil, err
		}
	}

	results := make([]*Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i := range jobs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := d.decodeEntry(idx, jobs[i])
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		d.metrics.RecordRun(source, false, time.Since(start))
		return nil, err
	}

	run := &Run{
		Summary: Summary{RunID: ksuid.New().String(), Source: source, Build: build, Entries: len(results)},
		Results: results,
	}
	for _, res := range results {
		d.count(&run.Summary, res)
	}
	run.Summary.Duration = time.Since(start)
	d.metrics.RecordRun(source, run.Summary.OK(), run.Summary.Duration)

	level.Info(d.logger).Log(
		"msg", "decode finished",
		"run_id", run.Summary.RunID,
		"source", source,
		"build", build,
		"entries", run.Summary.Entries,
		"decoded", run.Summary.Decoded,
		"raw", run.Summary.Raw,
		"failed", run.Summary.Failed,
		"duration", run.Summary.Duration,
	)
	return run, nil
}

func (d *Decoder) count(s *Summary, res *Result) {
	d.metrics.RecordEntry(res.Entry.Header.Status.String())
	switch {
	case res.Decoded():
		s.Decoded++
		d.metrics.RecordRecord(res.Table, metrics.OutcomeDecoded)
	case res.Err == nil:
		s.Empty++
	case res.Record != nil:
		s.Failed++
		d.metrics.RecordRecord(res.Table, metrics.OutcomeFailed)
	default:
		s.Raw++
		d.metrics.RecordRecord(res.Table, metrics.OutcomeRaw)
	}
	if res.Drift != nil {
		d.metrics.RecordDrift(res.Drift.Kind())
		if res.Drift.Trailing != nil {
			s.Trailing++
		}
	}
}

// decodeEntry decodes one payload. The returned error is fatal for the run;
// record-level failures are stored in the result.
func (d *Decoder) decodeEntry(idx *schema.TableIndex, j job) (*Result, error) {
	e := j.entry
	res := &Result{Entry: e, Table: j.table, Digest: Digest(e.Data)}

	if res.Table == "" {
		name, ok := idx.Lookup(e.Header.TableHash)
		if !ok {
			res.Table = UnknownTable
			res.Raw = e.Data
			res.Err = errors.Wrapf(schema.ErrSchemaNotFound, "table hash %08X", e.Header.TableHash)
			level.Debug(d.logger).Log("msg", "unknown table", "table_hash", fmt.Sprintf("%08X", e.Header.TableHash), "record_id", e.Header.RecordID)
			return res, nil
		}
		res.Table = name
	}

	if len(e.Data) == 0 {
		return res, nil
	}

	vs, err := d.registry.Resolve(res.Table, j.version, j.rv)
	if err != nil {
		res.Raw = e.Data
		res.Err = err
		level.Debug(d.logger).Log("msg", "no schema for record", "table", res.Table, "record_id", e.Header.RecordID, "err", err)
		return res, nil
	}

	rec, consumed, err := d.engine.Decode(e.Data, vs, res.Table, e.Header.RecordID)
	if err != nil {
		res.Record = rec
		res.Raw = e.Data
		res.Err = err
		level.Warn(d.logger).Log("msg", "record failed to decode", "table", res.Table, "record_id", e.Header.RecordID, "err", err)
		return res, nil
	}

	report, err := d.detector.Check(drift.Input{
		Table:    res.Table,
		RecordID: e.Header.RecordID,
		Offset:   e.PayloadOffset,
		Window:   e.Data,
		Declared: len(e.Data),
		Consumed: consumed,
		Index:    idx,
	}, j.mode)
	if err != nil {
		level.Error(d.logger).Log("msg", "schema overran payload", "table", res.Table, "record_id", e.Header.RecordID, "err", err)
		return res, err
	}

	rec.Trailing = report.Drift < 0
	res.Record = rec
	res.Drift = report
	return res, nil
}
