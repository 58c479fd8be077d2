package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/sipsa-io/sipsa/internal/config"
	"github.com/sipsa-io/sipsa/internal/soap/parser"
	"github.com/sipsa-io/sipsa/internal/storage"
)

// int64OrNull renders an optional id for reject raw dumps.
func int64OrNull(v *int64) string {
	if v == nil {
		return "null"
	}

	return strconv.FormatInt(*v, 10)
}

// missingFields renders the reject reason for absent required fields.
func missingFields(names ...string) string {
	return "Missing required fields: " + strings.Join(names, " ")
}

// newHandlerLogger builds the shared handler logger.
func newHandlerLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))
}

// CiudadFlusher is the write interface of the city price store.
type CiudadFlusher interface {
	Flush(ctx context.Context, batch []*storage.Ciudad) (storage.UpsertMetrics, error)
}

// CiudadHandler ingests promediosSipsaCiudad records.
type CiudadHandler struct {
	source      Source
	store       CiudadFlusher
	batchSize   int
	maxChildren int
	logger      *slog.Logger
}

// NewCiudadHandler creates the city price handler.
func NewCiudadHandler(source Source, store CiudadFlusher, batchSize, maxChildren int) *CiudadHandler {
	return &CiudadHandler{
		source:      source,
		store:       store,
		batchSize:   batchSize,
		maxChildren: maxChildren,
		logger:      newHandlerLogger(),
	}
}

// MethodName implements Handler.
func (h *CiudadHandler) MethodName() string { return MethodCiudad }

// Execute streams, validates, and upserts city price records. Validation
// failures become rejects and never abort the run; a stream-level failure
// flushes partial progress best-effort before propagating.
func (h *CiudadHandler) Execute(ctx context.Context, runCtx *RunContext) error {
	stream, err := h.source.Stream(ctx, h.MethodName())
	if err != nil {
		return err
	}

	defer func() {
		_ = stream.Close()
	}()

	p := parser.NewCiudadParser(stream, h.maxChildren)
	batch := make([]*storage.Ciudad, 0, h.batchSize)

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

		if rec.RegID == nil || rec.CodProducto == nil || rec.FechaCaptura == nil {
			rawData := fmt.Sprintf("regId=%s, codProducto=%s, fechaCaptura=%s, ciudad=%s, producto=%s",
				int64OrNull(rec.RegID), int64OrNull(rec.CodProducto), int64OrNull(rec.FechaCaptura),
				rec.Ciudad, rec.Producto)

			var missing []string

			if rec.RegID == nil {
				missing = append(missing, "regId")
			}

			if rec.CodProducto == nil {
				missing = append(missing, "codProducto")
			}

			if rec.FechaCaptura == nil {
				missing = append(missing, "fechaCaptura")
			}

			runCtx.AddReject(rawData, missingFields(missing...), false)

			continue
		}

		batch = append(batch, mapCiudad(rec, runCtx.RunID))

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
