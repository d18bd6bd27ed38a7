package clean

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novacred-engine/internal/domain"
)

const tracerName = "novacred-engine/internal/clean"

// Result is the outcome of one cleaning pass.
type Result struct {
	Clean   []domain.Record
	Dropped []DroppedRecord
	Changes []Change
	Review  []ReviewItem
	// Medians holds the imputation value per median-strategy field; a field
	// with no usable observations is absent.
	Medians map[domain.Field]float64
	// Touched counts records affected per step, in step order.
	Touched []StepCount
}

type StepCount struct {
	Step    string
	Records int
}

type Pipeline struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

func New(opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// WithTracerProvider traces runs through tp instead of the global provider.
func (p *Pipeline) WithTracerProvider(tp trace.TracerProvider) *Pipeline {
	p.tracer = tp.Tracer(tracerName)
	return p
}

type row struct {
	rec domain.Record
	raw domain.RawRecord
}

type state struct {
	opts Options
	rows []*row
	res  *Result
}

type step struct {
	name string
	fn   func(*state) int
}

// steps run strictly in this order: later steps read values (age, imputed
// credit history) that earlier ones produce.
var steps = []step{
	{"detect_missing", detectMissing},
	{"coerce_numbers", coerceNumbers},
	{"screen_impossible", screenImpossible},
	{"impute", impute},
	{"normalize", normalize},
	{"derive_age", deriveAge},
	{"dedupe_id", dedupeIDs},
	{"dedupe_ssn", dedupeSSN},
	{"email_validity", checkEmail},
	{"ssn_format", checkSSNFormat},
	{"range_bound", capCreditHistory},
	{"gender_category", flagGender},
	{"statistical_anomaly", flagAnomalies},
}

// Run cleans raw without modifying it. On a strict pass that found review
// items the full result is returned together with a *ReviewError.
func (p *Pipeline) Run(ctx context.Context, raw []domain.RawRecord) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "clean.run", trace.WithAttributes(
		attribute.Int("records.raw", len(raw)),
	))
	defer span.End()

	st := &state{
		opts: p.opts,
		rows: make([]*row, 0, len(raw)),
		res:  &Result{Medians: map[domain.Field]float64{}},
	}
	for _, r := range raw {
		st.rows = append(st.rows, &row{rec: r.Record.Clone(), raw: r})
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, stepSpan := p.tracer.Start(ctx, "clean."+s.name)
		n := s.fn(st)
		stepSpan.SetAttributes(attribute.Int("records.touched", n))
		stepSpan.End()

		st.res.Touched = append(st.res.Touched, StepCount{Step: s.name, Records: n})
		p.logger.Debug("rule applied", slog.String("step", s.name), slog.Int("records", n))
	}

	st.res.Clean = make([]domain.Record, 0, len(st.rows))
	for _, r := range st.rows {
		st.res.Clean = append(st.res.Clean, r.rec)
	}

	for _, it := range st.res.Review {
		p.logger.Error("record requires review",
			slog.String("id", it.RecordID),
			slog.String("field", string(it.Field)),
			slog.String("value", it.Value),
			slog.String("reason", it.Reason))
	}
	p.logger.Info("pipeline finished",
		slog.Int("raw", len(raw)),
		slog.Int("clean", len(st.res.Clean)),
		slog.Int("dropped", len(st.res.Dropped)),
		slog.Int("changes", len(st.res.Changes)),
		slog.Int("review", len(st.res.Review)))

	span.SetAttributes(
		attribute.Int("records.clean", len(st.res.Clean)),
		attribute.Int("records.dropped", len(st.res.Dropped)),
	)

	if p.opts.Strict && len(st.res.Review) > 0 {
		return st.res, &ReviewError{Items: st.res.Review}
	}
	return st.res, nil
}

func (st *state) change(id, rule string, field domain.Field, before, after *string) {
	st.res.Changes = append(st.res.Changes, Change{
		RecordID: id,
		Rule:     rule,
		Field:    string(field),
		Before:   before,
		After:    after,
	})
}

// keep drops every row for which drop returns true, preserving order.
func (st *state) keep(drop func(*row) bool) {
	kept := st.rows[:0]
	for _, r := range st.rows {
		if !drop(r) {
			kept = append(kept, r)
		}
	}
	st.rows = kept
}

func numText(n *domain.Number) *string {
	if n == nil {
		return nil
	}
	s := n.String()
	return &s
}

func textCopy(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
