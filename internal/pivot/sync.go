package pivot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"resourcekit/internal/dbexec"
	"resourcekit/internal/logging"
	"resourcekit/internal/observability"
	"resourcekit/internal/resterr"
	"resourcekit/internal/sqlutil"
)

// Result reports what a synchronization did.
type Result struct {
	Added     []string
	Removed   []string
	Unchanged []string
}

// Changed reports whether any row was written.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Synchronizer applies desired memberships to pivot tables. It holds no
// per-call state and never opens a transaction; every statement runs on the
// executor passed in.
type Synchronizer struct {
	dialect        sqlutil.Dialect
	checker        ExistenceChecker
	validateExists bool
	metrics        *observability.Metrics
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithChecker replaces the SQL existence checker.
func WithChecker(c ExistenceChecker) Option {
	return func(s *Synchronizer) { s.checker = c }
}

// WithValidateExists sets the default for specs that do not say otherwise.
func WithValidateExists(validate bool) Option {
	return func(s *Synchronizer) { s.validateExists = validate }
}

// WithMetrics records sync metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// NewSynchronizer creates a Synchronizer emitting SQL for dialect.
// Existence validation is on by default.
func NewSynchronizer(dialect sqlutil.Dialect, opts ...Option) *Synchronizer {
	s := &Synchronizer{dialect: dialect, validateExists: true}
	for _, opt := range opts {
		opt(s)
	}
	if s.checker == nil {
		s.checker = SQLChecker{Dialect: dialect}
	}
	return s
}

// Dialect returns the dialect statements are rendered for.
func (s *Synchronizer) Dialect() sqlutil.Dialect {
	return s.dialect
}

// Sync converts the pivot rows of ownerID into desired: one DELETE for rows
// no longer wanted and one multi-row INSERT for new ones. New targets are
// checked for existence first; a missing one aborts before any write.
func (s *Synchronizer) Sync(ctx context.Context, exec dbexec.QueryExecutor, spec Spec, ownerID string, desired []string) (result Result, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "pivot.sync", spanAttrs(spec, ownerID)...)
	defer func() {
		span.SetAttributes(
			attribute.Int("resourcekit.pivot.added", len(result.Added)),
			attribute.Int("resourcekit.pivot.removed", len(result.Removed)),
		)
		observability.FinishSpan(span, err, "")
		s.metrics.RecordSync(ctx, spec.Relationship, len(result.Added), len(result.Removed), time.Since(start), err)
	}()

	if err := spec.validate(); err != nil {
		return Result{}, err
	}

	current, err := s.current(ctx, exec, spec, ownerID)
	if err != nil {
		return Result{}, err
	}
	toAdd, toDelete, unchanged := Diff(current, desired)
	logger := s.logger(ctx, spec, ownerID)

	if len(toAdd) == 0 && len(toDelete) == 0 {
		logger.Debug("pivot already in sync", slog.Int("unchanged", len(unchanged)))
		return Result{Unchanged: unchanged}, nil
	}

	if err := s.checkExists(ctx, exec, spec, toAdd); err != nil {
		return Result{}, err
	}
	if err := s.delete(ctx, exec, spec, ownerID, toDelete); err != nil {
		return Result{}, err
	}
	if err := s.insert(ctx, exec, spec, ownerID, toAdd); err != nil {
		return Result{Removed: toDelete}, err
	}

	logger.Debug("pivot synchronized",
		slog.Int("added", len(toAdd)),
		slog.Int("removed", len(toDelete)),
		slog.Int("unchanged", len(unchanged)),
	)
	return Result{Added: toAdd, Removed: toDelete, Unchanged: unchanged}, nil
}

// CreatePivotRecords links ownerID to ids without reading or deleting
// existing rows. It is meant for freshly created owners.
func (s *Synchronizer) CreatePivotRecords(ctx context.Context, exec dbexec.QueryExecutor, spec Spec, ownerID string, ids []string) (result Result, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "pivot.create", spanAttrs(spec, ownerID)...)
	defer func() {
		span.SetAttributes(attribute.Int("resourcekit.pivot.added", len(result.Added)))
		observability.FinishSpan(span, err, "")
		s.metrics.RecordSync(ctx, spec.Relationship, len(result.Added), 0, time.Since(start), err)
	}()

	if err := spec.validate(); err != nil {
		return Result{}, err
	}
	toAdd := Dedupe(ids)
	if len(toAdd) == 0 {
		return Result{}, nil
	}
	if err := s.checkExists(ctx, exec, spec, toAdd); err != nil {
		return Result{}, err
	}
	if err := s.insert(ctx, exec, spec, ownerID, toAdd); err != nil {
		return Result{}, err
	}

	s.logger(ctx, spec, ownerID).Debug("pivot rows created", slog.Int("added", len(toAdd)))
	return Result{Added: toAdd}, nil
}

// CheckExists verifies that every id in ids names an existing target row,
// honoring the spec's and the synchronizer's validation setting. It writes
// nothing, so callers can validate several pivots before the first write.
func (s *Synchronizer) CheckExists(ctx context.Context, exec dbexec.QueryExecutor, spec Spec, ids []string) error {
	if err := spec.validate(); err != nil {
		return err
	}
	return s.checkExists(ctx, exec, spec, Dedupe(ids))
}

func (s *Synchronizer) current(ctx context.Context, exec dbexec.QueryExecutor, spec Spec, ownerID string) ([]string, error) {
	q := s.dialect.QuoteIdent
	query, args, err := sq.Select(q(spec.OtherKey)).
		From(q(spec.Table)).
		Where(sq.Eq{q(spec.ForeignKey): ownerID}).
		PlaceholderFormat(s.dialect.Placeholders()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build pivot select: %w", err)
	}

	var ids []string
	if err := scanIDs(ctx, exec, query, args, func(id string) { ids = append(ids, id) }); err != nil {
		return nil, fmt.Errorf("failed to load pivot rows of %q: %w", spec.Table, err)
	}
	return ids, nil
}

func (s *Synchronizer) checkExists(ctx context.Context, exec dbexec.QueryExecutor, spec Spec, ids []string) error {
	if len(ids) == 0 || !spec.shouldValidate(s.validateExists) {
		return nil
	}
	missing, err := s.checker.Missing(ctx, exec, spec, ids)
	if err != nil {
		return fmt.Errorf("failed to check %s existence: %w", spec.TargetResource, err)
	}
	if len(missing) > 0 {
		return resterr.NotFoundf("%s not found: %s", spec.TargetResource, strings.Join(missing, ", ")).
			WithResource(spec.TargetResource, missing[0]).
			WithRelationship(spec.Relationship)
	}
	return nil
}

func (s *Synchronizer) delete(ctx context.Context, exec dbexec.QueryExecutor, spec Spec, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := s.dialect.QuoteIdent
	query, args, err := sq.Delete(q(spec.Table)).
		Where(sq.And{
			sq.Eq{q(spec.ForeignKey): ownerID},
			sq.Eq{q(spec.OtherKey): toArgs(ids)},
		}).
		PlaceholderFormat(s.dialect.Placeholders()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build pivot delete: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete pivot rows of %q: %w", spec.Table, resterr.NormalizeDriverError(err))
	}
	return nil
}

// insert writes only the two key columns so database defaults fill any
// metadata columns.
func (s *Synchronizer) insert(ctx context.Context, exec dbexec.QueryExecutor, spec Spec, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := s.dialect.QuoteIdent
	builder := sq.Insert(q(spec.Table)).Columns(q(spec.ForeignKey), q(spec.OtherKey))
	for _, id := range ids {
		builder = builder.Values(ownerID, id)
	}
	query, args, err := builder.PlaceholderFormat(s.dialect.Placeholders()).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build pivot insert: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		normalized := resterr.NormalizeDriverError(err)
		if rerr, ok := normalized.(*resterr.Error); ok {
			rerr.WithResource(spec.TargetResource, "").WithRelationship(spec.Relationship)
		}
		return fmt.Errorf("failed to insert pivot rows into %q: %w", spec.Table, normalized)
	}
	return nil
}

func (s *Synchronizer) logger(ctx context.Context, spec Spec, ownerID string) *logging.Logger {
	return logging.FromContext(ctx).WithFields(
		slog.String("pivot", spec.Table),
		slog.String("relationship", spec.Relationship),
		slog.String("owner_id", ownerID),
	)
}

func spanAttrs(spec Spec, ownerID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("resourcekit.pivot.table", spec.Table),
		attribute.String("resourcekit.relationship", spec.Relationship),
		attribute.String("resourcekit.owner_id", ownerID),
	}
}
