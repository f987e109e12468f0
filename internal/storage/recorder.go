package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
)

// Recorder пишет запись истории в базу и, если он подключен, в поисковый индекс.
// Ошибка индекса не мешает записи в базу.
type Recorder struct {
	History *HistoryStore
	Index   *AnalysisIndex
	Logger  *slog.Logger
}

// Record сохраняет запись во все подключенные хранилища.
func (r *Recorder) Record(ctx context.Context, rec models.AnalysisRecord) error {
	var errs []error
	if r.History != nil {
		if err := r.History.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Index != nil {
		if err := r.Index.IndexAnalysis(ctx, rec); err != nil {
			if r.Logger != nil {
				r.Logger.Warn("failed to index analysis", "id", rec.ID, "error", err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recent последние анализы из базы.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]*models.AnalysisRecord, error) {
	if r.History == nil {
		return nil, errors.New("analysis history is not configured")
	}
	return r.History.Recent(ctx, limit)
}

// SearchWithin анализы в оболочке из индекса.
func (r *Recorder) SearchWithin(ctx context.Context, bbox models.BoundingBox, limit int) ([]*models.AnalysisRecord, error) {
	if r.Index == nil {
		return nil, errors.New("analysis index is not configured")
	}
	return r.Index.SearchWithin(ctx, bbox, limit)
}
