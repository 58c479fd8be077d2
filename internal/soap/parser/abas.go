package parser

import "io"

// The service reuses the fechamesini element for the supply month start.
var abasHandlers = map[string]handlerFunc[AbasRecord]{
	fieldTmpAbasMesID:  func(r *AbasRecord, t string) { r.TmpAbasMesID = ParseLong(t) },
	fieldArtiID:        func(r *AbasRecord, t string) { r.ArtiID = ParseLong(t) },
	fieldArtiNombre:    func(r *AbasRecord, t string) { r.ArtiNombre = t },
	fieldFuenID:        func(r *AbasRecord, t string) { r.FuenID = ParseLong(t) },
	fieldFuenNombre:    func(r *AbasRecord, t string) { r.FuenNombre = t },
	fieldFutiID:        func(r *AbasRecord, t string) { r.FutiID = ParseLong(t) },
	fieldFechaMesIni:   func(r *AbasRecord, t string) { r.FechaMes = ParseXMLDateTime(t) },
	fieldFechaCreacion: func(r *AbasRecord, t string) { r.FechaCreacion = ParseXMLDateTime(t) },
	fieldCantidadTon:   func(r *AbasRecord, t string) { r.CantidadTon = ParseDecimal(t) },
	fieldEnviado:       func(r *AbasRecord, t string) { r.Enviado = ParseDecimal(t) },
}

// NewAbasParser returns a pull parser for promedioAbasSipsaMesMadr responses.
func NewAbasParser(r io.Reader, maxChildren int) *Parser[AbasRecord] {
	return newParser(r, abasHandlers, maxChildren, func() *AbasRecord { return &AbasRecord{} })
}
