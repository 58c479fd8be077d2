package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestSource is the logical origin of an ingestion request.
type RequestSource string

// Request sources.
const (
	SourceManual    RequestSource = "MANUAL"
	SourceScheduled RequestSource = "SCHEDULED"
	SourceSystem    RequestSource = "SYSTEM"
)

// RunStatus is the lifecycle state of an ingestion run.
type RunStatus string

// Run statuses. STARTED and RUNNING are transient; SUCCEEDED and FAILED are terminal.
const (
	RunStarted   RunStatus = "STARTED"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)

// IsTerminal reports whether the status ends a run.
func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed
}

type (
	// Run is one execution attempt bound to (methodName, windowKey).
	Run struct {
		RunID            int64
		MethodName       string
		WindowKey        string
		RequestID        string
		RequestSource    RequestSource
		Status           RunStatus
		StartTime        time.Time
		EndTime          *time.Time
		RecordsSeen      int
		RecordsInserted  int
		RecordsUpdated   int
		RejectCount      int
		LastErrorMessage *string
		HTTPStatus       *int
		SoapFaultCode    *string
	}

	// AuditEvent is one row of the append-only ingestion timeline.
	AuditEvent struct {
		AuditID       int64
		RunID         *int64
		RequestID     string
		RequestSource RequestSource
		EventType     string
		Message       string
		OccurredAt    time.Time
	}

	// Reject is one input record excluded by validation or parsing.
	Reject struct {
		RejectID     int64
		RunID        int64
		RawData      string
		Reason       string
		IsParseError bool
		CreatedAt    time.Time
	}

	// RejectInput is a reject accumulated in memory during a run, before it
	// has a row identity.
	RejectInput struct {
		RawData      string
		Reason       string
		IsParseError bool
	}

	// UpsertMetrics reports the outcome of one batch flush.
	UpsertMetrics struct {
		Inserted int
		Skipped  int
	}
)

// Curated entities. All carry the ingestion run that produced them and an
// ingestion timestamp stamped at flush time.
type (
	// Ciudad is one city retail-price row (sipsa_ciudad).
	Ciudad struct {
		ID             int64
		RegID          *int64
		Ciudad         string
		CodProducto    *int64
		Producto       string
		FechaCaptura   *time.Time
		FechaCreacion  *time.Time
		PrecioPromedio decimal.NullDecimal
		Enviado        decimal.NullDecimal
		FechaIngestion time.Time
		IngestionRunID int64
	}

	// Parcial is one municipal market row (sipsa_parcial), deduplicated by a
	// SHA-256 hash over its business fields.
	Parcial struct {
		ID             int64
		KeyHash        string
		MuniID         string
		MuniNombre     string
		DeptNombre     string
		FuenID         *int64
		FuenNombre     string
		FutiID         *int64
		IDArtiSemana   *int64
		ArtiNombre     string
		GrupNombre     string
		EnmaFecha      *time.Time
		PromedioKg     decimal.NullDecimal
		MaximoKg       decimal.NullDecimal
		MinimoKg       decimal.NullDecimal
		LastUpdated    time.Time
		IngestionRunID int64
	}

	// MayoristasSemanal is one weekly wholesale row (sipsa_mayoristas_semanal).
	MayoristasSemanal struct {
		ID             int64
		TmpMayoSemID   *int64
		ArtiID         *int64
		ArtiNombre     string
		FuenID         *int64
		FuenNombre     string
		FutiID         *int64
		FechaIni       *time.Time
		FechaCreacion  *time.Time
		MinimoKg       decimal.NullDecimal
		MaximoKg       decimal.NullDecimal
		PromedioKg     decimal.NullDecimal
		Enviado        decimal.NullDecimal
		LastUpdated    time.Time
		IngestionRunID int64
	}

	// MayoristasMensual is one monthly wholesale row (sipsa_mayoristas_mensual).
	MayoristasMensual struct {
		ID             int64
		TmpMayoMesID   *int64
		ArtiID         *int64
		ArtiNombre     string
		FuenID         *int64
		FuenNombre     string
		FutiID         *int64
		FechaMesIni    *time.Time
		FechaCreacion  *time.Time
		MinimoKg       decimal.NullDecimal
		MaximoKg       decimal.NullDecimal
		PromedioKg     decimal.NullDecimal
		Enviado        decimal.NullDecimal
		LastUpdated    time.Time
		IngestionRunID int64
	}

	// AbastecimientosMensual is one monthly supply row (sipsa_abastecimientos_mensual).
	AbastecimientosMensual struct {
		ID             int64
		TmpAbasMesID   *int64
		ArtiID         *int64
		ArtiNombre     string
		FuenID         *int64
		FuenNombre     string
		FutiID         *int64
		FechaMesIni    *time.Time
		FechaCreacion  *time.Time
		CantidadTon    decimal.NullDecimal
		Enviado        decimal.NullDecimal
		FechaIngestion time.Time
		IngestionRunID int64
	}
)
