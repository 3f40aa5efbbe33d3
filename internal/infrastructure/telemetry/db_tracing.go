package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool // include bound variables; never in production
	SlowQueryThresh time.Duration
	DBName          string
}

// DBTracingPlugin registers otelgorm and marks slow statements on their spans.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a database tracing plugin
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBName == "" {
		cfg.DBName = "postgresql"
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

type queryStartKey struct{}

// Register installs otelgorm plus the slow query callbacks on db
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBName)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := db.Callback()
	for _, reg := range []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("kost_timing:before_create", p.before) },
		func() error { return cb.Query().Before("gorm:query").Register("kost_timing:before_query", p.before) },
		func() error { return cb.Update().Before("gorm:update").Register("kost_timing:before_update", p.before) },
		func() error { return cb.Delete().Before("gorm:delete").Register("kost_timing:before_delete", p.before) },
		func() error { return cb.Row().Before("gorm:row").Register("kost_timing:before_row", p.before) },
		func() error { return cb.Raw().Before("gorm:raw").Register("kost_timing:before_raw", p.before) },
		func() error { return cb.Create().After("gorm:create").Register("kost_timing:after_create", p.after) },
		func() error { return cb.Query().After("gorm:query").Register("kost_timing:after_query", p.after) },
		func() error { return cb.Update().After("gorm:update").Register("kost_timing:after_update", p.after) },
		func() error { return cb.Delete().After("gorm:delete").Register("kost_timing:after_delete", p.after) },
		func() error { return cb.Row().After("gorm:row").Register("kost_timing:after_row", p.after) },
		func() error { return cb.Raw().After("gorm:raw").Register("kost_timing:after_raw", p.after) },
	} {
		if err := reg(); err != nil {
			return err
		}
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

func (p *DBTracingPlugin) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (p *DBTracingPlugin) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		RecordError(span, db.Error)
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
}
