package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sipsa-io/sipsa/internal/soap/parser"
	"github.com/sipsa-io/sipsa/internal/storage"
)

// MesFlusher is the write interface of the monthly wholesale store.
type MesFlusher interface {
	FlushTmp(ctx context.Context, batch []*storage.MayoristasMensual) (storage.UpsertMetrics, error)
	FlushFallback(ctx context.Context, batch []*storage.MayoristasMensual) (storage.UpsertMetrics, error)
}

// MesHandler ingests promediosSipsaMesMadr records.
type MesHandler struct {
	source      Source
	store       MesFlusher
	batchSize   int
	maxChildren int
	logger      *slog.Logger
}

// NewMesHandler creates the monthly wholesale handler.
func NewMesHandler(source Source, store MesFlusher, batchSize, maxChildren int) *MesHandler {
	return &MesHandler{
		source:      source,
		store:       store,
		batchSize:   batchSize,
		maxChildren: maxChildren,
		logger:      newHandlerLogger(),
	}
}

// MethodName implements Handler.
func (h *MesHandler) MethodName() string { return MethodMes }

// Execute streams, validates, and upserts monthly wholesale records through
// the dual-strategy batches.
func (h *MesHandler) Execute(ctx context.Context, runCtx *RunContext) error {
	stream, err := h.source.Stream(ctx, h.MethodName())
	if err != nil {
		return err
	}

	defer func() {
		_ = stream.Close()
	}()

	p := parser.NewMesParser(stream, h.maxChildren)

	tmpBatch := make([]*storage.MayoristasMensual, 0, h.batchSize)
	fallbackBatch := make([]*storage.MayoristasMensual, 0, h.batchSize)

	flushTmp := func() error {
		if len(tmpBatch) == 0 {
			return nil
		}

		metrics, err := h.store.FlushTmp(ctx, tmpBatch)
		runCtx.AddInserted(metrics.Inserted)
		tmpBatch = tmpBatch[:0]

		return err
	}

	flushFallback := func() error {
		if len(fallbackBatch) == 0 {
			return nil
		}

		metrics, err := h.store.FlushFallback(ctx, fallbackBatch)
		runCtx.AddInserted(metrics.Inserted)
		fallbackBatch = fallbackBatch[:0]

		return err
	}

	for {
		rec, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		var recordErr *parser.RecordError
		if errors.As(err, &recordErr) {
			runCtx.IncrementSeen()
			runCtx.AddReject(h.MethodName(), recordErr.Reason, true)

			continue
		}

		if err != nil {
			h.logger.Warn("Error during ingestion, attempting to save partial progress",
				slog.String("method", h.MethodName()),
				slog.Int("records_seen", runCtx.Seen()),
			)

			_ = flushTmp()
			_ = flushFallback()

			return err
		}

		runCtx.IncrementSeen()

		if rec.ArtiID == nil || rec.FuenID == nil || rec.FechaMesIni == nil {
			rawData := fmt.Sprintf("tmpMayoMesId=%s, artiId=%s, fuenId=%s, fechaMesIni=%s, artiNombre=%s",
				int64OrNull(rec.TmpMayoMesID), int64OrNull(rec.ArtiID), int64OrNull(rec.FuenID),
				int64OrNull(rec.FechaMesIni), rec.ArtiNombre)

			var missing []string

			if rec.ArtiID == nil {
				missing = append(missing, "artiId")
			}

			if rec.FuenID == nil {
				missing = append(missing, "fuenId")
			}

			if rec.FechaMesIni == nil {
				missing = append(missing, "fechaMesIni")
			}

			runCtx.AddReject(rawData, missingFields(missing...), false)

			continue
		}

		entity := mapMes(rec, runCtx.RunID)

		if rec.TmpMayoMesID != nil {
			tmpBatch = append(tmpBatch, entity)

			if len(tmpBatch) >= h.batchSize {
				if err := flushTmp(); err != nil {
					return err
				}
			}

			continue
		}

		fallbackBatch = append(fallbackBatch, entity)

		if len(fallbackBatch) >= h.batchSize {
			if err := flushFallback(); err != nil {
				return err
			}
		}
	}

	if err := flushTmp(); err != nil {
		return err
	}

	if err := flushFallback(); err != nil {
		return err
	}

	h.logger.Info("SOAP method completed",
		slog.String("method", h.MethodName()),
		slog.Int("records_seen", runCtx.Seen()),
		slog.Int("rejected", runCtx.Rejected()),
	)

	return nil
}
