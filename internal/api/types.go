package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sipsa-io/sipsa/internal/storage"
)

// Envelope is the pagination wrapper of the curated read API. Page numbering
// is 1-based externally; next/prev are full URLs with the page query replaced.
type Envelope struct {
	Count   int64   `json:"count"`
	Next    *string `json:"next"`
	Prev    *string `json:"prev"`
	Pages   int     `json:"pages"`
	Results any     `json:"results"`
}

type (
	// AuditEventDTO is the wire form of one audit event.
	AuditEventDTO struct {
		AuditID       int64   `json:"auditId"`
		RunID         *int64  `json:"runId,omitempty"`
		RequestSource string  `json:"requestSource,omitempty"`
		EventType     string  `json:"eventType"`
		Message       string  `json:"message"`
		OccurredAt    string  `json:"occurredAt"`
	}

	// AuditTrailDTO is the wire form of one request's audit trail.
	AuditTrailDTO struct {
		RequestID  string          `json:"requestId"`
		EventCount int             `json:"eventCount"`
		FirstEvent string          `json:"firstEvent"`
		LastEvent  string          `json:"lastEvent"`
		Events     []AuditEventDTO `json:"events"`
	}

	// CiudadDTO is the wire form of a city price row.
	CiudadDTO struct {
		ID             int64   `json:"id"`
		RegID          *int64  `json:"regId"`
		Ciudad         string  `json:"ciudad"`
		CodProducto    *int64  `json:"codProducto"`
		Producto       string  `json:"producto"`
		FechaCaptura   *string `json:"fechaCaptura"`
		FechaCreacion  *string `json:"fechaCreacion,omitempty"`
		PrecioPromedio *string `json:"precioPromedio"`
		Enviado        *string `json:"enviado,omitempty"`
		FechaIngestion string  `json:"fechaIngestion"`
		IngestionRunID int64   `json:"ingestionRunId"`
	}

	// ParcialDTO is the wire form of a municipal market row.
	ParcialDTO struct {
		ID             int64   `json:"id"`
		MuniID         string  `json:"muniId"`
		MuniNombre     string  `json:"muniNombre"`
		DeptNombre     string  `json:"deptNombre,omitempty"`
		FuenID         *int64  `json:"fuenId"`
		FuenNombre     string  `json:"fuenNombre,omitempty"`
		FutiID         *int64  `json:"futiId"`
		IDArtiSemana   *int64  `json:"idArtiSemana"`
		ArtiNombre     string  `json:"artiNombre"`
		GrupNombre     string  `json:"grupNombre,omitempty"`
		EnmaFecha      *string `json:"enmaFecha"`
		PromedioKg     *string `json:"promedioKg"`
		MaximoKg       *string `json:"maximoKg"`
		MinimoKg       *string `json:"minimoKg"`
		LastUpdated    string  `json:"lastUpdated"`
		IngestionRunID int64   `json:"ingestionRunId"`
	}

	// SemanaDTO is the wire form of a weekly wholesale row.
	SemanaDTO struct {
		ID             int64   `json:"id"`
		TmpMayoSemID   *int64  `json:"tmpMayoSemId,omitempty"`
		ArtiID         *int64  `json:"artiId"`
		ArtiNombre     string  `json:"artiNombre"`
		FuenID         *int64  `json:"fuenId"`
		FuenNombre     string  `json:"fuenNombre"`
		FutiID         *int64  `json:"futiId"`
		FechaIni       *string `json:"fechaIni"`
		FechaCreacion  *string `json:"fechaCreacion,omitempty"`
		MinimoKg       *string `json:"minimoKg"`
		MaximoKg       *string `json:"maximoKg"`
		PromedioKg     *string `json:"promedioKg"`
		Enviado        *string `json:"enviado,omitempty"`
		LastUpdated    string  `json:"lastUpdated"`
		IngestionRunID int64   `json:"ingestionRunId"`
	}

	// MesDTO is the wire form of a monthly wholesale row.
	MesDTO struct {
		ID             int64   `json:"id"`
		TmpMayoMesID   *int64  `json:"tmpMayoMesId,omitempty"`
		ArtiID         *int64  `json:"artiId"`
		ArtiNombre     string  `json:"artiNombre"`
		FuenID         *int64  `json:"fuenId"`
		FuenNombre     string  `json:"fuenNombre"`
		FutiID         *int64  `json:"futiId"`
		FechaMesIni    *string `json:"fechaMesIni"`
		FechaCreacion  *string `json:"fechaCreacion,omitempty"`
		MinimoKg       *string `json:"minimoKg"`
		MaximoKg       *string `json:"maximoKg"`
		PromedioKg     *string `json:"promedioKg"`
		Enviado        *string `json:"enviado,omitempty"`
		LastUpdated    string  `json:"lastUpdated"`
		IngestionRunID int64   `json:"ingestionRunId"`
	}

	// AbasDTO is the wire form of a monthly supply row.
	AbasDTO struct {
		ID             int64   `json:"id"`
		TmpAbasMesID   *int64  `json:"tmpAbasMesId,omitempty"`
		ArtiID         *int64  `json:"artiId"`
		ArtiNombre     string  `json:"artiNombre"`
		FuenID         *int64  `json:"fuenId"`
		FuenNombre     string  `json:"fuenNombre"`
		FutiID         *int64  `json:"futiId"`
		FechaMesIni    *string `json:"fechaMesIni"`
		FechaCreacion  *string `json:"fechaCreacion,omitempty"`
		CantidadTon    *string `json:"cantidadTon"`
		Enviado        *string `json:"enviado,omitempty"`
		FechaIngestion string  `json:"fechaIngestion"`
		IngestionRunID int64   `json:"ingestionRunId"`
	}
)

// formatTime renders an instant in the request display zone.
func formatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.RFC3339)
}

func formatTimePtr(t *time.Time, loc *time.Location) *string {
	if t == nil {
		return nil
	}

	formatted := formatTime(*t, loc)

	return &formatted
}

func formatDecimal(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}

	formatted := d.Decimal.String()

	return &formatted
}

func toAuditEventDTO(event storage.AuditEvent, loc *time.Location) AuditEventDTO {
	return AuditEventDTO{
		AuditID:       event.AuditID,
		RunID:         event.RunID,
		RequestSource: string(event.RequestSource),
		EventType:     event.EventType,
		Message:       event.Message,
		OccurredAt:    formatTime(event.OccurredAt, loc),
	}
}

func toCiudadDTO(item storage.Ciudad, loc *time.Location) CiudadDTO {
	return CiudadDTO{
		ID:             item.ID,
		RegID:          item.RegID,
		Ciudad:         item.Ciudad,
		CodProducto:    item.CodProducto,
		Producto:       item.Producto,
		FechaCaptura:   formatTimePtr(item.FechaCaptura, loc),
		FechaCreacion:  formatTimePtr(item.FechaCreacion, loc),
		PrecioPromedio: formatDecimal(item.PrecioPromedio),
		Enviado:        formatDecimal(item.Enviado),
		FechaIngestion: formatTime(item.FechaIngestion, loc),
		IngestionRunID: item.IngestionRunID,
	}
}

func toParcialDTO(item storage.Parcial, loc *time.Location) ParcialDTO {
	return ParcialDTO{
		ID:             item.ID,
		MuniID:         item.MuniID,
		MuniNombre:     item.MuniNombre,
		DeptNombre:     item.DeptNombre,
		FuenID:         item.FuenID,
		FuenNombre:     item.FuenNombre,
		FutiID:         item.FutiID,
		IDArtiSemana:   item.IDArtiSemana,
		ArtiNombre:     item.ArtiNombre,
		GrupNombre:     item.GrupNombre,
		EnmaFecha:      formatTimePtr(item.EnmaFecha, loc),
		PromedioKg:     formatDecimal(item.PromedioKg),
		MaximoKg:       formatDecimal(item.MaximoKg),
		MinimoKg:       formatDecimal(item.MinimoKg),
		LastUpdated:    formatTime(item.LastUpdated, loc),
		IngestionRunID: item.IngestionRunID,
	}
}

func toSemanaDTO(item storage.MayoristasSemanal, loc *time.Location) SemanaDTO {
	return SemanaDTO{
		ID:             item.ID,
		TmpMayoSemID:   item.TmpMayoSemID,
		ArtiID:         item.ArtiID,
		ArtiNombre:     item.ArtiNombre,
		FuenID:         item.FuenID,
		FuenNombre:     item.FuenNombre,
		FutiID:         item.FutiID,
		FechaIni:       formatTimePtr(item.FechaIni, loc),
		FechaCreacion:  formatTimePtr(item.FechaCreacion, loc),
		MinimoKg:       formatDecimal(item.MinimoKg),
		MaximoKg:       formatDecimal(item.MaximoKg),
		PromedioKg:     formatDecimal(item.PromedioKg),
		Enviado:        formatDecimal(item.Enviado),
		LastUpdated:    formatTime(item.LastUpdated, loc),
		IngestionRunID: item.IngestionRunID,
	}
}

func toMesDTO(item storage.MayoristasMensual, loc *time.Location) MesDTO {
	return MesDTO{
		ID:             item.ID,
		TmpMayoMesID:   item.TmpMayoMesID,
		ArtiID:         item.ArtiID,
		ArtiNombre:     item.ArtiNombre,
		FuenID:         item.FuenID,
		FuenNombre:     item.FuenNombre,
		FutiID:         item.FutiID,
		FechaMesIni:    formatTimePtr(item.FechaMesIni, loc),
		FechaCreacion:  formatTimePtr(item.FechaCreacion, loc),
		MinimoKg:       formatDecimal(item.MinimoKg),
		MaximoKg:       formatDecimal(item.MaximoKg),
		PromedioKg:     formatDecimal(item.PromedioKg),
		Enviado:        formatDecimal(item.Enviado),
		LastUpdated:    formatTime(item.LastUpdated, loc),
		IngestionRunID: item.IngestionRunID,
	}
}

func toAbasDTO(item storage.AbastecimientosMensual, loc *time.Location) AbasDTO {
	return AbasDTO{
		ID:             item.ID,
		TmpAbasMesID:   item.TmpAbasMesID,
		ArtiID:         item.ArtiID,
		ArtiNombre:     item.ArtiNombre,
		FuenID:         item.FuenID,
		FuenNombre:     item.FuenNombre,
		FutiID:         item.FutiID,
		FechaMesIni:    formatTimePtr(item.FechaMesIni, loc),
		FechaCreacion:  formatTimePtr(item.FechaCreacion, loc),
		CantidadTon:    formatDecimal(item.CantidadTon),
		Enviado:        formatDecimal(item.Enviado),
		FechaIngestion: formatTime(item.FechaIngestion, loc),
		IngestionRunID: item.IngestionRunID,
	}
}
