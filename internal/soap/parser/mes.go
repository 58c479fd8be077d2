package parser

import "io"

var mesHandlers = map[string]handlerFunc[MesRecord]{
	fieldTmpMayoMesID:  func(r *MesRecord, t string) { r.TmpMayoMesID = ParseLong(t) },
	fieldArtiID:        func(r *MesRecord, t string) { r.ArtiID = ParseLong(t) },
	fieldArtiNombre:    func(r *MesRecord, t string) { r.ArtiNombre = t },
	fieldFuenID:        func(r *MesRecord, t string) { r.FuenID = ParseLong(t) },
	fieldFuenNombre:    func(r *MesRecord, t string) { r.FuenNombre = t },
	fieldFutiID:        func(r *MesRecord, t string) { r.FutiID = ParseLong(t) },
	fieldFechaMesIni:   func(r *MesRecord, t string) { r.FechaMesIni = ParseXMLDateTime(t) },
	fieldFechaCreacion: func(r *MesRecord, t string) { r.FechaCreacion = ParseXMLDateTime(t) },
	fieldMaximoKg:      func(r *MesRecord, t string) { r.MaximoKg = ParseDecimal(t) },
	fieldMinimoKg:      func(r *MesRecord, t string) { r.MinimoKg = ParseDecimal(t) },
	fieldPromedioKg:    func(r *MesRecord, t string) { r.PromedioKg = ParseDecimal(t) },
	fieldEnviado:       func(r *MesRecord, t string) { r.Enviado = ParseDecimal(t) },
}

// NewMesParser returns a pull parser for promediosSipsaMesMadr responses.
func NewMesParser(r io.Reader, maxChildren int) *Parser[MesRecord] {
	return newParser(r, mesHandlers, maxChildren, func() *MesRecord { return &MesRecord{} })
}
