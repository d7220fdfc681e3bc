// Package worker implements the buffered sink for built feature rows.
// The pipeline emits rows faster than ClickHouse likes individual inserts,
// so rows are queued and written in batches, with a flush ticker bounding
// staleness and a graceful Stop that drains the queue.
package worker

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/courtsight/predictor-api/internal/logic"
	"github.com/courtsight/predictor-api/internal/models"
)

// Prometheus metrics
var (
	rowsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictor_feature_rows_queued_total",
		Help: "Total number of feature rows queued for persistence",
	})

	rowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictor_feature_rows_written_total",
		Help: "Total number of feature rows written to ClickHouse",
	})

	rowsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictor_feature_rows_failed_total",
		Help: "Total number of feature rows that failed to persist",
	})

	batchInsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "predictor_batch_insert_duration_seconds",
		Help:    "Duration of batch inserts to ClickHouse",
		Buckets: prometheus.DefBuckets,
	})
)

// SinkConfig configures the feature row sink.
type SinkConfig struct {
	Profile       *logic.Profile
	RunID         uuid.UUID
	BatchSize     int
	FlushInterval time.Duration
	ClickHouse    driver.Conn
	CSV           io.Writer
	Logger        *zap.Logger
}

// Sink persists feature rows to the ClickHouse training table and,
// optionally, a CSV export for offline model fitting. At least one of
// ClickHouse and CSV must be set.
type Sink struct {
	config SinkConfig
	queue  chan models.FeatureRow
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.SugaredLogger

	csvMu  sync.Mutex
	csv    *csv.Writer
	wroteH bool
}

// NewSink creates a sink for one pipeline run.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if cfg.ClickHouse == nil && cfg.CSV == nil {
		return nil, fmt.Errorf("sink needs a ClickHouse connection or a CSV writer")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	s := &Sink{
		config: cfg,
		queue:  make(chan models.FeatureRow, cfg.BatchSize*4),
		logger: cfg.Logger.Sugar(),
	}
	if cfg.CSV != nil {
		s.csv = csv.NewWriter(cfg.CSV)
	}
	return s, nil
}

// Start launches the writer goroutine.
func (s *Sink) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.writer()
	s.logger.Infow("Feature sink started",
		"run_id", s.config.RunID,
		"profile", s.config.Profile.Name,
		"batchSize", s.config.BatchSize,
	)
}

// Stop drains the queue, flushes the final batch and the CSV buffer.
func (s *Sink) Stop() {
	close(s.queue)
	s.wg.Wait()
	s.cancel()
	if s.csv != nil {
		s.csvMu.Lock()
		s.csv.Flush()
		s.csvMu.Unlock()
	}
	s.logger.Info("Feature sink stopped")
}

// Enqueue adds one row. Blocks when the queue is full; the pipeline is a
// batch job, so backpressure is preferable to shedding training rows.
func (s *Sink) Enqueue(row models.FeatureRow) bool {
	select {
	case s.queue <- row:
		rowsQueued.Inc()
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Sink) writer() {
	defer s.wg.Done()

	batch := make([]models.FeatureRow, 0, s.config.BatchSize)
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.writeBatch(batch); err != nil {
			s.logger.Errorw("Batch write failed", "batchSize", len(batch), "error", err)
			rowsFailed.Add(float64(len(batch)))
		} else {
			rowsWritten.Add(float64(len(batch)))
		}
		batchInsertDuration.Observe(time.Since(start).Seconds())
		batch = batch[:0]
	}

	for {
		select {
		case row, ok := <-s.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, row)
			if len(batch) >= s.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.ctx.Done():
			flush()
			return
		}
	}
}

func (s *Sink) writeBatch(batch []models.FeatureRow) error {
	if s.config.ClickHouse != nil {
		if err := s.writeClickHouse(batch); err != nil {
			return err
		}
	}
	if s.csv != nil {
		if err := s.writeCSV(batch); err != nil {
			return err
		}
	}
	return nil
}

// writeClickHouse appends the batch to the training table. Feature values
// travel as parallel name/value arrays so the table schema is stable across
// profiles.
func (s *Sink) writeClickHouse(batch []models.FeatureRow) error {
	ctx := context.Background()

	chBatch, err := s.config.ClickHouse.PrepareBatch(ctx, `
		INSERT INTO predictor.feature_rows (
			run_id, profile, model_version, game_id, game_date, season,
			home_team_id, away_team_id,
			feature_names, feature_values,
			home_win, point_spread
		)
	`)
	if err != nil {
		return err
	}

	names := s.config.Profile.Features
	for _, row := range batch {
		values := row.Vector(names)
		err := chBatch.Append(
			s.config.RunID,
			s.config.Profile.Name,
			s.config.Profile.ModelVersion,
			row.GameID,
			row.Date,
			int32(row.Season),
			row.HomeTeamID,
			row.AwayTeamID,
			names,
			values,
			row.HomeWin,
			row.PointSpread,
		)
		if err != nil {
			s.logger.Warnw("Failed to append row to batch", "game_id", row.GameID, "error", err)
			continue
		}
	}

	return chBatch.Send()
}

func (s *Sink) writeCSV(batch []models.FeatureRow) error {
	s.csvMu.Lock()
	defer s.csvMu.Unlock()

	names := s.config.Profile.Features
	if !s.wroteH {
		header := make([]string, 0, len(names)+4)
		header = append(header, "game_id", "date", "season")
		header = append(header, names...)
		header = append(header, targetColumn(s.config.Profile.Target))
		if err := s.csv.Write(header); err != nil {
			return err
		}
		s.wroteH = true
	}

	record := make([]string, 0, len(names)+4)
	for _, row := range batch {
		record = record[:0]
		record = append(record,
			strconv.FormatInt(row.GameID, 10),
			row.Date.Format("2006-01-02"),
			strconv.Itoa(row.Season),
		)
		for _, v := range row.Vector(names) {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		switch s.config.Profile.Target {
		case logic.TargetPointSpread:
			record = append(record, strconv.FormatFloat(row.PointSpread, 'g', -1, 64))
		default:
			record = append(record, strconv.FormatFloat(row.HomeWin, 'g', -1, 64))
		}
		if err := s.csv.Write(record); err != nil {
			return err
		}
	}
	s.csv.Flush()
	return s.csv.Error()
}

func targetColumn(t logic.TargetKind) string {
	if t == logic.TargetPointSpread {
		return "point_spread"
	}
	return "home_win"
}
