package ingestion

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sipsa-io/sipsa/internal/soap/parser"
	"github.com/sipsa-io/sipsa/internal/storage"
)

// millisToTime materializes an upstream epoch-millis value as a UTC instant.
func millisToTime(millis *int64) *time.Time {
	if millis == nil {
		return nil
	}

	t := time.UnixMilli(*millis).UTC()

	return &t
}

// nullDecimal converts a best-effort parsed decimal into its SQL form.
func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}

	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// parseEnmaFecha materializes the raw enmafecha text as an instant. The raw
// text stays authoritative for the dedup hash; this value only populates the
// entity column. Returns nil when the text is not RFC 3339 (ISO-8601 with a
// zone offset).
func parseEnmaFecha(text string) *time.Time {
	if text == "" {
		return nil
	}

	parsed, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return nil
	}

	utc := parsed.UTC()

	return &utc
}

func mapCiudad(rec *parser.CiudadRecord, runID int64) *storage.Ciudad {
	return &storage.Ciudad{
		RegID:          rec.RegID,
		Ciudad:         rec.Ciudad,
		CodProducto:    rec.CodProducto,
		Producto:       rec.Producto,
		FechaCaptura:   millisToTime(rec.FechaCaptura),
		FechaCreacion:  millisToTime(rec.FechaCreacion),
		PrecioPromedio: nullDecimal(rec.PrecioPromedio),
		Enviado:        nullDecimal(rec.Enviado),
		IngestionRunID: runID,
	}
}

func mapParcial(rec *parser.ParcialRecord, keyHash string, runID int64) *storage.Parcial {
	return &storage.Parcial{
		KeyHash:        keyHash,
		MuniID:         rec.MuniID,
		MuniNombre:     rec.MuniNombre,
		DeptNombre:     rec.DeptNombre,
		FuenID:         rec.FuenID,
		FuenNombre:     rec.FuenNombre,
		FutiID:         rec.FutiID,
		IDArtiSemana:   rec.IDArtiSemana,
		ArtiNombre:     rec.ArtiNombre,
		GrupNombre:     rec.GrupNombre,
		EnmaFecha:      parseEnmaFecha(rec.EnmaFecha),
		PromedioKg:     nullDecimal(rec.PromedioKg),
		MaximoKg:       nullDecimal(rec.MaximoKg),
		MinimoKg:       nullDecimal(rec.MinimoKg),
		IngestionRunID: runID,
	}
}

func mapSemana(rec *parser.SemanaRecord, runID int64) *storage.MayoristasSemanal {
	return &storage.MayoristasSemanal{
		TmpMayoSemID:   rec.TmpMayoSemID,
		ArtiID:         rec.ArtiID,
		ArtiNombre:     rec.ArtiNombre,
		FuenID:         rec.FuenID,
		FuenNombre:     rec.FuenNombre,
		FutiID:         rec.FutiID,
		FechaIni:       millisToTime(rec.FechaIni),
		FechaCreacion:  millisToTime(rec.FechaCreacion),
		MinimoKg:       nullDecimal(rec.MinimoKg),
		MaximoKg:       nullDecimal(rec.MaximoKg),
		PromedioKg:     nullDecimal(rec.PromedioKg),
		Enviado:        nullDecimal(rec.Enviado),
		IngestionRunID: runID,
	}
}

func mapMes(rec *parser.MesRecord, runID int64) *storage.MayoristasMensual {
	return &storage.MayoristasMensual{
		TmpMayoMesID:   rec.TmpMayoMesID,
		ArtiID:         rec.ArtiID,
		ArtiNombre:     rec.ArtiNombre,
		FuenID:         rec.FuenID,
		FuenNombre:     rec.FuenNombre,
		FutiID:         rec.FutiID,
		FechaMesIni:    millisToTime(rec.FechaMesIni),
		FechaCreacion:  millisToTime(rec.FechaCreacion),
		MinimoKg:       nullDecimal(rec.MinimoKg),
		MaximoKg:       nullDecimal(rec.MaximoKg),
		PromedioKg:     nullDecimal(rec.PromedioKg),
		Enviado:        nullDecimal(rec.Enviado),
		IngestionRunID: runID,
	}
}

func mapAbas(rec *parser.AbasRecord, runID int64) *storage.AbastecimientosMensual {
	return &storage.AbastecimientosMensual{
		TmpAbasMesID:   rec.TmpAbasMesID,
		ArtiID:         rec.ArtiID,
		ArtiNombre:     rec.ArtiNombre,
		FuenID:         rec.FuenID,
		FuenNombre:     rec.FuenNombre,
		FutiID:         rec.FutiID,
		FechaMesIni:    millisToTime(rec.FechaMes),
		FechaCreacion:  millisToTime(rec.FechaCreacion),
		CantidadTon:    nullDecimal(rec.CantidadTon),
		Enviado:        nullDecimal(rec.Enviado),
		IngestionRunID: runID,
	}
}
