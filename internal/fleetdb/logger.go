package fleetdb

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arkeep-io/fleethub/internal/metrics"
)

// Statements slower than this are logged at Warn and counted as "slow" on
// the ops surface. The DB actor sets a 2s statement_timeout on Postgres,
// so anything near this threshold is already eating a large slice of a
// monitor tick.
const slowStatement = 200 * time.Millisecond

// zapGORMLogger routes GORM's internal logging through the hub logger and
// feeds per-statement timings into the ops metrics surface, the same way
// rpc.Conn.Call does for outbound agent calls. Record-not-found is not an
// error at this layer — the actor's queries treat it as an ordinary
// row-or-none outcome.
type zapGORMLogger struct {
	sugar *zap.SugaredLogger
	plain *zap.Logger
	level gormlogger.LogLevel
}

func newZapGORMLogger(log *zap.Logger, level gormlogger.LogLevel) gormlogger.Interface {
	if level == 0 {
		level = gormlogger.Warn
	}
	skipped := log.WithOptions(zap.AddCallerSkip(3))
	return &zapGORMLogger{sugar: skipped.Sugar(), plain: skipped, level: level}
}

func (l *zapGORMLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *zapGORMLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.sugar.Infof(msg, args...)
	}
}

func (l *zapGORMLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.sugar.Warnf(msg, args...)
	}
}

func (l *zapGORMLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.sugar.Errorf(msg, args...)
	}
}

func (l *zapGORMLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	outcome := "ok"
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		outcome = "error"
	case elapsed > slowStatement:
		outcome = "slow"
	}
	metrics.DBQueryDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if l.level <= gormlogger.Silent {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}

	switch outcome {
	case "error":
		if l.level >= gormlogger.Error {
			l.plain.Error("statement failed", append(fields, zap.Error(err))...)
		}
	case "slow":
		if l.level >= gormlogger.Warn {
			l.plain.Warn("slow statement", fields...)
		}
	default:
		if l.level >= gormlogger.Info {
			l.plain.Debug("statement", fields...)
		}
	}
}
