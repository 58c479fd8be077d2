package parser

import "io"

var ciudadHandlers = map[string]handlerFunc[CiudadRecord]{
	fieldRegID:          func(r *CiudadRecord, t string) { r.RegID = ParseLong(t) },
	fieldCiudad:         func(r *CiudadRecord, t string) { r.Ciudad = t },
	fieldCodProducto:    func(r *CiudadRecord, t string) { r.CodProducto = ParseLong(t) },
	fieldProducto:       func(r *CiudadRecord, t string) { r.Producto = t },
	fieldFechaCaptura:   func(r *CiudadRecord, t string) { r.FechaCaptura = ParseXMLDateTime(t) },
	fieldFechaCreacion:  func(r *CiudadRecord, t string) { r.FechaCreacion = ParseXMLDateTime(t) },
	fieldPrecioPromedio: func(r *CiudadRecord, t string) { r.PrecioPromedio = ParseDecimal(t) },
	fieldEnviado:        func(r *CiudadRecord, t string) { r.Enviado = ParseDecimal(t) },
}

// NewCiudadParser returns a pull parser for promediosSipsaCiudad responses.
func NewCiudadParser(r io.Reader, maxChildren int) *Parser[CiudadRecord] {
	return newParser(r, ciudadHandlers, maxChildren, func() *CiudadRecord { return &CiudadRecord{} })
}
