package parser

import "io"

var parcialHandlers = map[string]handlerFunc[ParcialRecord]{
	fieldMuniID:       func(r *ParcialRecord, t string) { r.MuniID = t },
	fieldMuniNombre:   func(r *ParcialRecord, t string) { r.MuniNombre = t },
	fieldDeptNombre:   func(r *ParcialRecord, t string) { r.DeptNombre = t },
	fieldFuenID:       func(r *ParcialRecord, t string) { r.FuenID = ParseLong(t) },
	fieldFuenNombre:   func(r *ParcialRecord, t string) { r.FuenNombre = t },
	fieldFutiID:       func(r *ParcialRecord, t string) { r.FutiID = ParseLong(t) },
	fieldArtiNombre:   func(r *ParcialRecord, t string) { r.ArtiNombre = t },
	fieldGrupNombre:   func(r *ParcialRecord, t string) { r.GrupNombre = t },
	fieldIDArtiSemana: func(r *ParcialRecord, t string) { r.IDArtiSemana = ParseLong(t) },
	// Raw text on purpose: the dedup hash is computed over the original
	// string, not a normalized timestamp.
	fieldEnmaFecha:  func(r *ParcialRecord, t string) { r.EnmaFecha = t },
	fieldPromedioKg: func(r *ParcialRecord, t string) { r.PromedioKg = ParseDecimal(t) },
	fieldMaximoKg:   func(r *ParcialRecord, t string) { r.MaximoKg = ParseDecimal(t) },
	fieldMinimoKg:   func(r *ParcialRecord, t string) { r.MinimoKg = ParseDecimal(t) },
}

// NewParcialParser returns a pull parser for promediosSipsaParcial responses.
// The service emits no artiId for this method; the article identity is
// idArtiSemana, mirrored into ArtiID when the block closes.
func NewParcialParser(r io.Reader, maxChildren int) *Parser[ParcialRecord] {
	p := newParser(r, parcialHandlers, maxChildren, func() *ParcialRecord { return &ParcialRecord{} })
	p.finish = func(record *ParcialRecord) {
		record.ArtiID = record.IDArtiSemana
	}

	return p
}
