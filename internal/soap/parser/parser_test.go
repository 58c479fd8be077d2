package parser

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxChildren = 100

func envelope(body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">` +
		`<soap:Body><ns2:promediosSipsaCiudadResponse xmlns:ns2="https://appweb.dane.gov.co/sipsaWS/">` +
		body +
		`</ns2:promediosSipsaCiudadResponse></soap:Body></soap:Envelope>`
}

func collectCiudad(t *testing.T, xml string) []*CiudadRecord {
	t.Helper()

	p := NewCiudadParser(strings.NewReader(xml), testMaxChildren)

	var records []*CiudadRecord

	for {
		rec, err := p.Next()
		if errors.Is(err, io.EOF) {
			return records
		}

		require.NoError(t, err)
		records = append(records, rec)
	}
}

func TestCiudadParserHappyPath(t *testing.T) {
	xml := envelope(`
		<return>
			<regId>1001</regId>
			<ciudad>Bogotá, D.C.</ciudad>
			<codProducto>77</codProducto>
			<producto>Papa criolla</producto>
			<fechaCaptura>1735819200000</fechaCaptura>
			<precioPromedio>3250.50</precioPromedio>
			<enviado>1</enviado>
		</return>
		<return>
			<regId>1002</regId>
			<ciudad>Medellín</ciudad>
			<codProducto>78</codProducto>
			<fechaCaptura>2026-01-02T08:30:00Z</fechaCaptura>
		</return>`)

	records := collectCiudad(t, xml)
	require.Len(t, records, 2)

	first := records[0]
	require.NotNil(t, first.RegID)
	assert.Equal(t, int64(1001), *first.RegID)
	assert.Equal(t, "Bogotá, D.C.", first.Ciudad)
	require.NotNil(t, first.CodProducto)
	assert.Equal(t, int64(77), *first.CodProducto)
	require.NotNil(t, first.FechaCaptura)
	assert.Equal(t, int64(1735819200000), *first.FechaCaptura)
	require.NotNil(t, first.PrecioPromedio)
	assert.Equal(t, "3250.5", first.PrecioPromedio.String())

	second := records[1]
	require.NotNil(t, second.FechaCaptura, "ISO-8601 date must parse")
	assert.Nil(t, second.PrecioPromedio)
}

func TestParserIgnoresUnknownElements(t *testing.T) {
	xml := envelope(`
		<return>
			<regId>5</regId>
			<somethingNew>whatever</somethingNew>
			<codProducto>9</codProducto>
		</return>`)

	records := collectCiudad(t, xml)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].RegID)
	require.NotNil(t, records[0].CodProducto)
}

func TestParserBlankAndMalformedNumericFieldsAreNil(t *testing.T) {
	xml := envelope(`
		<return>
			<regId>   </regId>
			<codProducto>not-a-number</codProducto>
			<precioPromedio></precioPromedio>
			<fechaCaptura>yesterday</fechaCaptura>
		</return>`)

	records := collectCiudad(t, xml)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].RegID)
	assert.Nil(t, records[0].CodProducto)
	assert.Nil(t, records[0].PrecioPromedio)
	assert.Nil(t, records[0].FechaCaptura)
}

func TestParserFieldNamesAreCaseInsensitive(t *testing.T) {
	xml := envelope(`
		<return>
			<REGID>7</REGID>
			<CodProducto>8</CodProducto>
		</return>`)

	records := collectCiudad(t, xml)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].RegID)
	assert.Equal(t, int64(7), *records[0].RegID)
}

func TestParserSoap12Fault(t *testing.T) {
	xml := `<?xml version="1.0"?>` +
		`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>` +
		`<soap:Fault><soap:Code><soap:Value>soap:Receiver</soap:Value></soap:Code>` +
		`<soap:Reason><soap:Text xml:lang="en">Backend busy</soap:Text></soap:Reason>` +
		`</soap:Fault></soap:Body></soap:Envelope>`

	p := NewCiudadParser(strings.NewReader(xml), testMaxChildren)

	_, err := p.Next()
	require.ErrorIs(t, err, ErrSoapFault)

	var fault *FaultError

	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "Backend busy", fault.Message)

	_, err = p.Next()
	assert.ErrorIs(t, err, io.EOF, "iteration ends after a fault")
}

func TestParserSoap11Fault(t *testing.T) {
	xml := `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body>` +
		`<soapenv:Fault><faultcode>Server</faultcode><faultstring>Service down</faultstring></soapenv:Fault>` +
		`</soapenv:Body></soapenv:Envelope>`

	p := NewCiudadParser(strings.NewReader(xml), testMaxChildren)

	_, err := p.Next()

	var fault *FaultError

	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "Service down", fault.Message)
}

func TestParserTruncatedStream(t *testing.T) {
	xml := envelope(`<return><regId>1</regId>`)
	// Chop the closing tags off to simulate a dropped connection.
	xml = xml[:strings.Index(xml, "<regId>")+10]

	p := NewCiudadParser(strings.NewReader(xml), testMaxChildren)

	_, err := p.Next()
	require.ErrorIs(t, err, ErrParse)

	var parseErr *ParseError

	assert.ErrorAs(t, err, &parseErr)
}

func TestParserRejectsDoctype(t *testing.T) {
	xml := `<?xml version="1.0"?><!DOCTYPE foo [<!ENTITY xxe SYSTEM "file:///etc/passwd">]>` +
		`<root><return><regId>1</regId></return></root>`

	p := NewCiudadParser(strings.NewReader(xml), testMaxChildren)

	_, err := p.Next()
	assert.ErrorIs(t, err, ErrParse)
}

func TestParserChildElementCap(t *testing.T) {
	var sb strings.Builder

	sb.WriteString(`<root><return>`)

	for range 20 {
		sb.WriteString(`<regId>1</regId>`)
	}

	sb.WriteString(`</return><return><regId>42</regId></return></root>`)

	p := NewCiudadParser(strings.NewReader(sb.String()), 5)

	_, err := p.Next()

	var recordErr *RecordError

	require.ErrorAs(t, err, &recordErr, "oversized record is a record-level error")

	// The stream stays usable after the oversized record.
	rec, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, rec.RegID)
	assert.Equal(t, int64(42), *rec.RegID)
}

func TestParcialParserKeepsRawEnmaFechaAndMirrorsArtiID(t *testing.T) {
	xml := `<root><return>
		<muniId>05001</muniId>
		<fuenId>301</fuenId>
		<futiId>2</futiId>
		<idArtiSemana>550</idArtiSemana>
		<enmaFecha>2026-01-02T00:00:00-05:00</enmaFecha>
		<artiNombre>Tomate chonto</artiNombre>
		<promedioKg>2100.00</promedioKg>
	</return></root>`

	p := NewParcialParser(strings.NewReader(xml), testMaxChildren)

	rec, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T00:00:00-05:00", rec.EnmaFecha, "raw text preserved for hashing")
	require.NotNil(t, rec.ArtiID)
	assert.Equal(t, int64(550), *rec.ArtiID)
	require.NotNil(t, rec.IDArtiSemana)
	assert.Equal(t, *rec.IDArtiSemana, *rec.ArtiID)
}

func TestSemanaParserTmpIDPresence(t *testing.T) {
	xml := `<root>
		<return><tmpMayoSemId>900</tmpMayoSemId><artiId>10</artiId><fuenId>20</fuenId><fechaIni>1735819200000</fechaIni></return>
		<return><artiId>11</artiId><fuenId>21</fuenId><fechaIni>1735819200000</fechaIni></return>
	</root>`

	p := NewSemanaParser(strings.NewReader(xml), testMaxChildren)

	first, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, first.TmpMayoSemID)
	assert.Equal(t, int64(900), *first.TmpMayoSemID)

	second, err := p.Next()
	require.NoError(t, err)
	assert.Nil(t, second.TmpMayoSemID)
	require.NotNil(t, second.FechaIni)
}

func TestAbasParserReadsSupplyFields(t *testing.T) {
	xml := `<root><return>
		<tmpAbasMesId>77</tmpAbasMesId>
		<artiId>5</artiId>
		<fuenId>6</fuenId>
		<fechaMesIni>1733029200000</fechaMesIni>
		<cantidadTon>154.25</cantidadTon>
	</return></root>`

	p := NewAbasParser(strings.NewReader(xml), testMaxChildren)

	rec, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, rec.TmpAbasMesID)
	require.NotNil(t, rec.FechaMes)
	assert.Equal(t, int64(1733029200000), *rec.FechaMes)
	require.NotNil(t, rec.CantidadTon)
	assert.Equal(t, "154.25", rec.CantidadTon.String())
}
