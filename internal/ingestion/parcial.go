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

// ParcialFlusher is the write interface of the municipal market store.
type ParcialFlusher interface {
	Flush(ctx context.Context, batch []*storage.Parcial) (storage.UpsertMetrics, error)
}

// ParcialHandler ingests promediosSipsaParcial records, deduplicated by a
// SHA-256 hash over the business fields.
type ParcialHandler struct {
	source      Source
	store       ParcialFlusher
	batchSize   int
	maxChildren int
	logger      *slog.Logger
}

// NewParcialHandler creates the municipal market handler.
func NewParcialHandler(source Source, store ParcialFlusher, batchSize, maxChildren int) *ParcialHandler {
	return &ParcialHandler{
		source:      source,
		store:       store,
		batchSize:   batchSize,
		maxChildren: maxChildren,
		logger:      newHandlerLogger(),
	}
}

// MethodName implements Handler.
func (h *ParcialHandler) MethodName() string { return MethodParcial }

// Execute streams, validates, hashes, and upserts municipal market records.
func (h *ParcialHandler) Execute(ctx context.Context, runCtx *RunContext) error {
	stream, err := h.source.Stream(ctx, h.MethodName())
	if err != nil {
		return err
	}

	defer func() {
		_ = stream.Close()
	}()

	p := parser.NewParcialParser(stream, h.maxChildren)
	batch := make([]*storage.Parcial, 0, h.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		metrics, err := h.store.Flush(ctx, batch)
		runCtx.AddInserted(metrics.Inserted)
		batch = batch[:0]

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

			_ = flush()

			return err
		}

		runCtx.IncrementSeen()

		if rec.MuniID == "" || rec.FuenID == nil || rec.FutiID == nil ||
			rec.IDArtiSemana == nil || rec.EnmaFecha == "" {
			rawData := fmt.Sprintf("muniId=%s, fuenId=%s, futiId=%s, idArtiSemana=%s, enmaFecha=%s, muniNombre=%s, artiNombre=%s",
				stringOrNull(rec.MuniID), int64OrNull(rec.FuenID), int64OrNull(rec.FutiID),
				int64OrNull(rec.IDArtiSemana), stringOrNull(rec.EnmaFecha), rec.MuniNombre, rec.ArtiNombre)

			var missing []string

			if rec.MuniID == "" {
				missing = append(missing, "muniId")
			}

			if rec.FuenID == nil {
				missing = append(missing, "fuenId")
			}

			if rec.FutiID == nil {
				missing = append(missing, "futiId")
			}

			if rec.IDArtiSemana == nil {
				missing = append(missing, "idArtiSemana")
			}

			if rec.EnmaFecha == "" {
				missing = append(missing, "enmaFecha")
			}

			runCtx.AddReject(rawData, missingFields(missing...), false)

			continue
		}

		// The hash is computed over deterministic renderings of the fields
		// (numeric ids as parsed decimals, enmaFecha as its original text) so
		// identical upstream records always collide.
		keyHash := storage.DedupHash(
			rec.MuniID,
			int64OrNull(rec.FuenID),
			int64OrNull(rec.FutiID),
			int64OrNull(rec.IDArtiSemana),
			rec.EnmaFecha,
			rec.ArtiNombre,
		)

		batch = append(batch, mapParcial(rec, keyHash, runCtx.RunID))

		if len(batch) >= h.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}

	h.logger.Info("SOAP method completed",
		slog.String("method", h.MethodName()),
		slog.Int("records_seen", runCtx.Seen()),
		slog.Int("rejected", runCtx.Rejected()),
	)

	return nil
}

// stringOrNull renders an optional string for reject raw dumps.
func stringOrNull(s string) string {
	if s == "" {
		return "null"
	}

	return s
}
