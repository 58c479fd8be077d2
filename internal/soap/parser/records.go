package parser

import "github.com/shopspring/decimal"

// Raw SOAP records, one type per SIPSA method. Pointer fields are nil when
// the element was absent, blank, or failed its best-effort parse. Date fields
// carry epoch milliseconds as delivered upstream; they are materialized into
// absolute timestamps when the ingestion handler maps a record to its entity.
type (
	// CiudadRecord is one city retail-price record (promediosSipsaCiudad).
	CiudadRecord struct {
		RegID          *int64
		Ciudad         string
		CodProducto    *int64
		Producto       string
		FechaCaptura   *int64
		FechaCreacion  *int64
		PrecioPromedio *decimal.Decimal
		Enviado        *decimal.Decimal
	}

	// ParcialRecord is one municipal market record (promediosSipsaParcial).
	// EnmaFecha is kept as raw text: the dedup hash is computed over the
	// original string, and only the entity mapping converts it to an instant.
	ParcialRecord struct {
		MuniID       string
		MuniNombre   string
		DeptNombre   string
		FuenID       *int64
		FuenNombre   string
		FutiID       *int64
		ArtiID       *int64
		ArtiNombre   string
		GrupNombre   string
		IDArtiSemana *int64
		EnmaFecha    string
		PromedioKg   *decimal.Decimal
		MaximoKg     *decimal.Decimal
		MinimoKg     *decimal.Decimal
	}

	// SemanaRecord is one weekly wholesale record (promediosSipsaSemanaMadr).
	SemanaRecord struct {
		TmpMayoSemID  *int64
		ArtiID        *int64
		ArtiNombre    string
		FuenID        *int64
		FuenNombre    string
		FutiID        *int64
		FechaIni      *int64
		FechaCreacion *int64
		MinimoKg      *decimal.Decimal
		MaximoKg      *decimal.Decimal
		PromedioKg    *decimal.Decimal
		Enviado       *decimal.Decimal
	}

	// MesRecord is one monthly wholesale record (promediosSipsaMesMadr).
	MesRecord struct {
		TmpMayoMesID  *int64
		ArtiID        *int64
		ArtiNombre    string
		FuenID        *int64
		FuenNombre    string
		FutiID        *int64
		FechaMesIni   *int64
		FechaCreacion *int64
		MinimoKg      *decimal.Decimal
		MaximoKg      *decimal.Decimal
		PromedioKg    *decimal.Decimal
		Enviado       *decimal.Decimal
	}

	// AbasRecord is one monthly supply record (promedioAbasSipsaMesMadr).
	AbasRecord struct {
		TmpAbasMesID  *int64
		ArtiID        *int64
		ArtiNombre    string
		FuenID        *int64
		FuenNombre    string
		FutiID        *int64
		FechaMes      *int64
		FechaCreacion *int64
		CantidadTon   *decimal.Decimal
		Enviado       *decimal.Decimal
	}
)
