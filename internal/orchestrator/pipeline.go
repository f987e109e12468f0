package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/akozadaev/go_quarry_depth_finder/internal/apperr"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
)

// ErrClosed оркестратор остановлен.
var ErrClosed = errors.New("orchestrator is closed")

// begin делает sess текущей и запускает конвейер с этапа first.
func (o *Orchestrator) begin(ctx context.Context, sess *Session, first Stage) (*Session, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	sess.stage = first
	o.current = sess
	o.surface.Reset()
	o.surface.Replace(o.renderer.Loading())
	o.wg.Add(1)
	o.mu.Unlock()
	o.notify()

	o.logger.Info("analysis session started", "session", sess.id, "source", sess.source, "stage", first)

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer o.wg.Done()
		defer close(sess.done)
		if first == StageAwaitingDepth {
			o.runDepth(runCtx, sess)
			return
		}
		o.runElevation(runCtx, sess)
	}()
	return sess, nil
}

func (o *Orchestrator) beginUpload(ctx context.Context, sess *Session, data []byte) (*Session, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	sess.stage = StageAwaitingElevation
	o.current = sess
	o.surface.Reset()
	o.surface.Replace(o.renderer.Loading())
	o.wg.Add(1)
	o.mu.Unlock()
	o.notify()

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer o.wg.Done()
		defer close(sess.done)
		o.runUpload(runCtx, sess, data)
	}()
	return sess, nil
}

// present применяет fn к поверхности, только если sess все еще текущая.
func (o *Orchestrator) present(sess *Session, fn func()) bool {
	o.mu.Lock()
	if o.current != sess {
		o.mu.Unlock()
		if sess.markDiscarded() {
			o.events.Info("Discarded results from an abandoned analysis session")
			o.logger.Info("stale session results dropped", "session", sess.id)
			o.notify()
		}
		return false
	}
	fn()
	o.mu.Unlock()
	o.notify()
	return true
}

func (o *Orchestrator) request(sess *Session) models.AnalysisRequest {
	req := models.AnalysisRequest{
		DEMSource:      o.cfg.DEMSource,
		Coords:         sess.polygon.Clone(),
		ReferencePoint: sess.reference,
	}
	if sess.bbox != nil {
		req.BBox = *sess.bbox
	}
	return req
}

func (o *Orchestrator) runElevation(ctx context.Context, sess *Session) {
	o.present(sess, func() {
		o.events.Info("Starting DEM download from satellite...")
	})

	start := time.Now()
	resp, err := o.backend.GetDEM(ctx, o.request(sess))
	o.metrics.ObserveStage("elevation", time.Since(start))
	if err != nil {
		o.fail(ctx, sess, err, func() {
			o.events.Error("Error downloading elevation data: " + apperr.UserMessage(err))
			o.surface.Replace(o.renderer.ErrorBanner("Error downloading elevation data: " + apperr.UserMessage(err)))
		})
		return
	}

	sess.update(func(s *Session) {
		s.elevation = resp
		s.stage = StageAwaitingDepth
	})
	o.present(sess, func() {
		o.events.Success("DEM data downloaded successfully")
		o.surface.Prepend(o.renderer.ElevationSummary(resp))
		o.surface.Replace(o.renderer.Status("Running depth analysis..."))
	})

	if src := o.awaitRaster(ctx); src != "" {
		o.present(sess, func() {
			o.surface.SetFigure(o.renderer.Figure(src))
		})
	}

	o.runDepth(ctx, sess)
}

func (o *Orchestrator) runDepth(ctx context.Context, sess *Session) {
	o.present(sess, func() {
		o.events.Info("Starting Depth Finder analysis with gradient descent...")
	})

	start := time.Now()
	resp, err := o.backend.AnalyzeDepth(ctx, o.request(sess))
	o.metrics.ObserveStage("depth", time.Since(start))
	if err != nil {
		sess.update(func(s *Session) { s.fallback = true })
		o.fail(ctx, sess, err, func() {
			o.events.Error("Error in Depth Finder analysis: " + apperr.UserMessage(err))
			o.surface.Replace(o.renderer.ErrorBanner("Depth analysis failed: " + apperr.UserMessage(err)))
			o.surface.Append(o.renderer.DepthReport(models.FallbackStatistics(), true))
		})
		return
	}

	sess.update(func(s *Session) {
		s.depth = resp
		s.stage = StageComplete
	})
	stats := resp.DepthStats
	o.present(sess, func() {
		o.events.Success("Depth analysis completed successfully")
		o.events.Info("Gradient Descent Surface: " + o.renderer.Metric(stats.SurfaceGradientDescent, 1) + "m")
		o.events.Info("Original Surface: " + o.renderer.Metric(stats.SurfaceOriginalMethod, 1) + "m")
		o.events.Info("Max Depth: " + o.renderer.Metric(stats.MaxDepth, 1) + "m")
		o.events.Info("Quarry Area: " + o.renderer.Count(stats.TotalAreaM2) + " m²")
		o.events.Info("Excavation Volume: " + o.renderer.Count(stats.VolumeM3) + " m³")
		o.surface.Replace(o.renderer.DepthReport(stats, false))
	})

	if o.cfg.VisualizationEnabled && resp.Visualization != "" {
		o.showVisualization(ctx, sess, resp.Visualization)
	}
	o.finish(ctx, sess)
}

func (o *Orchestrator) showVisualization(ctx context.Context, sess *Session, visualization string) {
	if err := o.sleep(ctx, o.cfg.VisualizationDelay); err != nil {
		return
	}
	src, err := o.backend.FetchRaster(ctx, visualization)
	if err != nil {
		o.logger.Warn("visualization not reachable", "session", sess.id, "error", err)
	}
	if src == "" {
		return
	}
	o.present(sess, func() {
		o.surface.Append(o.renderer.Visualization(src))
	})
}

func (o *Orchestrator) runUpload(ctx context.Context, sess *Session, data []byte) {
	start := time.Now()
	resp, err := o.backend.UploadDEM(ctx, sess.filename, bytes.NewReader(data))
	o.metrics.ObserveStage("upload", time.Since(start))
	if err != nil {
		o.fail(ctx, sess, err, func() {
			o.events.Error("Upload failed: " + apperr.UserMessage(err))
			o.surface.Replace(o.renderer.ErrorBanner("Upload failed: " + apperr.UserMessage(err)))
		})
		return
	}

	sess.update(func(s *Session) {
		s.upload = resp
		s.stage = StageComplete
	})
	o.present(sess, func() {
		o.events.Success("Analysis Complete!")
		o.surface.Replace(o.renderer.UploadReport(resp))
	})
	o.finish(ctx, sess)
}

// fail переводит сессию в Failed и выводит ошибку через show.
func (o *Orchestrator) fail(ctx context.Context, sess *Session, err error, show func()) {
	sess.update(func(s *Session) {
		s.err = err
		s.stage = StageFailed
	})
	o.logger.Warn("analysis session failed", "session", sess.id, "error", err)
	o.present(sess, show)
	o.finish(ctx, sess)
}

func (o *Orchestrator) finish(ctx context.Context, sess *Session) {
	sess.update(func(s *Session) { s.finishedAt = o.now() })
	rec := sess.record()
	o.metrics.ObserveSession(rec.Source, rec.Outcome)

	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, rec); err != nil {
		o.logger.Error("failed to record analysis", "session", sess.id, "error", err)
	}
}

// awaitRaster ждет готовности растра высот и возвращает его адрес.
// При нулевом ReadinessTimeout выполняется одна попытка и фиксированная пауза.
// По истечении таймаута анализ продолжается без растра.
func (o *Orchestrator) awaitRaster(ctx context.Context) string {
	if o.cfg.ReadinessTimeout <= 0 {
		src, err := o.backend.FetchRaster(ctx, o.cfg.RasterPath)
		if err != nil {
			o.logger.Debug("raster reload failed", "error", err)
		}
		_ = o.sleep(ctx, o.cfg.ElevationSettleDelay)
		return src
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.pollInterval
	b.MaxInterval = 2 * time.Second

	var last string
	src, err := backoff.Retry(ctx, func() (string, error) {
		s, err := o.backend.FetchRaster(ctx, o.cfg.RasterPath)
		last = s
		return s, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(o.cfg.ReadinessTimeout),
	)
	if err != nil {
		o.logger.Warn("raster not ready, continuing", "timeout", o.cfg.ReadinessTimeout, "error", err)
		return last
	}
	return src
}
