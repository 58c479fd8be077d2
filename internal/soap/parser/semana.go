package parser

import "io"

var semanaHandlers = map[string]handlerFunc[SemanaRecord]{
	fieldTmpMayoSemID:  func(r *SemanaRecord, t string) { r.TmpMayoSemID = ParseLong(t) },
	fieldArtiID:        func(r *SemanaRecord, t string) { r.ArtiID = ParseLong(t) },
	fieldArtiNombre:    func(r *SemanaRecord, t string) { r.ArtiNombre = t },
	fieldFuenID:        func(r *SemanaRecord, t string) { r.FuenID = ParseLong(t) },
	fieldFuenNombre:    func(r *SemanaRecord, t string) { r.FuenNombre = t },
	fieldFutiID:        func(r *SemanaRecord, t string) { r.FutiID = ParseLong(t) },
	fieldFechaIni:      func(r *SemanaRecord, t string) { r.FechaIni = ParseXMLDateTime(t) },
	fieldFechaCreacion: func(r *SemanaRecord, t string) { r.FechaCreacion = ParseXMLDateTime(t) },
	fieldMaximoKg:      func(r *SemanaRecord, t string) { r.MaximoKg = ParseDecimal(t) },
	fieldMinimoKg:      func(r *SemanaRecord, t string) { r.MinimoKg = ParseDecimal(t) },
	fieldPromedioKg:    func(r *SemanaRecord, t string) { r.PromedioKg = ParseDecimal(t) },
	fieldEnviado:       func(r *SemanaRecord, t string) { r.Enviado = ParseDecimal(t) },
}

// NewSemanaParser returns a pull parser for promediosSipsaSemanaMadr responses.
func NewSemanaParser(r io.Reader, maxChildren int) *Parser[SemanaRecord] {
	return newParser(r, semanaHandlers, maxChildren, func() *SemanaRecord { return &SemanaRecord{} })
}
