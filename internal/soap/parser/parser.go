// Package parser provides streaming pull parsers for SIPSA SOAP responses.
//
// Each parser walks the XML token stream and yields one typed record per
// <return> block without materializing the payload. Field handling is
// best-effort: unknown elements are ignored, blank text skips the field, and
// numeric or date text that fails to parse leaves the field nil.
//
// The decoders are XXE-safe: DTDs are rejected and no custom entities are
// resolved (only the predefined XML entities).
package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sentinel errors for parse outcomes.
var (
	// ErrSoapFault indicates a SOAP <Fault> element inside the response body.
	ErrSoapFault = errors.New("SOAP fault in response")

	// ErrParse indicates the XML stream was malformed or closed unexpectedly.
	ErrParse = errors.New("XML parse error")
)

const (
	returnElement      = "return"
	faultElement       = "fault"
	faultTextElement   = "text"
	faultStringElement = "faultstring"
)

type (
	// FaultError carries the fault text captured from a SOAP <Fault> element.
	FaultError struct {
		Message string
	}

	// ParseError is a stream-level failure; iteration cannot continue.
	ParseError struct {
		Err error
	}

	// RecordError is a record-level failure; the stream remains usable and
	// the caller may continue iterating after recording a reject.
	RecordError struct {
		Reason string
	}

	// handlerFunc applies one field's trimmed text to the record under build.
	handlerFunc[R any] func(record *R, text string)

	// Parser is a lazy pull iterator over <return> records of type R.
	Parser[R any] struct {
		dec         *xml.Decoder
		handlers    map[string]handlerFunc[R]
		newRecord   func() *R
		finish      func(*R) // optional, runs after a <return> block closes
		maxChildren int
		done        bool
	}
)

// Error implements the error interface.
func (e *FaultError) Error() string {
	return "SOAP fault in response: " + e.Message
}

// Unwrap allows errors.Is(err, ErrSoapFault).
func (e *FaultError) Unwrap() error { return ErrSoapFault }

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("XML parse error: %v", e.Err)
}

// Unwrap allows errors.Is(err, ErrParse); the underlying stream error is
// available from Cause.
func (e *ParseError) Unwrap() error { return ErrParse }

// Cause returns the underlying stream error.
func (e *ParseError) Cause() error { return e.Err }

// Error implements the error interface.
func (e *RecordError) Error() string {
	return "record parse error: " + e.Reason
}

// Unwrap allows errors.Is(err, ErrParse).
func (e *RecordError) Unwrap() error { return ErrParse }

// newParser builds the shared parser core around an XML token decoder.
func newParser[R any](
	r io.Reader,
	handlers map[string]handlerFunc[R],
	maxChildren int,
	newRecord func() *R,
) *Parser[R] {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	// Only the predefined XML entities resolve; anything else is an error,
	// which closes the external-entity hole.
	dec.Entity = map[string]string{}

	return &Parser[R]{
		dec:         dec,
		handlers:    handlers,
		newRecord:   newRecord,
		maxChildren: maxChildren,
	}
}

// Next returns the next record from the stream.
//
// Error contract:
//   - io.EOF: no more records
//   - *FaultError: a SOAP fault was found; iteration is over
//   - *RecordError: this record was unreadable; iteration may continue
//   - *ParseError: the stream itself failed; iteration is over
func (p *Parser[R]) Next() (*R, error) {
	if p.done {
		return nil, io.EOF
	}

	for {
		tok, err := p.dec.Token()
		if err != nil {
			p.done = true

			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}

			return nil, &ParseError{Err: err}
		}

		switch t := tok.(type) {
		case xml.Directive:
			if isDoctype(t) {
				p.done = true

				return nil, &ParseError{Err: errors.New("DTD processing is disabled")}
			}
		case xml.StartElement:
			local := strings.ToLower(t.Name.Local)

			if local == faultElement {
				p.done = true

				return nil, p.readFault()
			}

			if local == returnElement {
				return p.parseReturn()
			}
		default:
		}
	}
}

// parseReturn consumes one <return> block, dispatching child elements to the
// handler map by lowercased local name.
func (p *Parser[R]) parseReturn() (*R, error) {
	record := p.newRecord()
	children := 0

	for {
		tok, err := p.dec.Token()
		if err != nil {
			p.done = true

			return nil, &ParseError{Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			children++
			if children > p.maxChildren {
				if err := p.resyncToReturnEnd(); err != nil {
					p.done = true

					return nil, &ParseError{Err: err}
				}

				return nil, &RecordError{
					Reason: fmt.Sprintf("record exceeds %d child elements", p.maxChildren),
				}
			}

			text, err := p.readElementText()
			if err != nil {
				p.done = true

				return nil, &ParseError{Err: err}
			}

			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}

			if handler, ok := p.handlers[strings.ToLower(t.Name.Local)]; ok {
				handler(record, text)
			}
		case xml.EndElement:
			if strings.ToLower(t.Name.Local) == returnElement {
				if p.finish != nil {
					p.finish(record)
				}

				return record, nil
			}
		default:
		}
	}
}

// readElementText collects the character data of the current element,
// skipping any nested elements, until the element closes.
func (p *Parser[R]) readElementText() (string, error) {
	var sb strings.Builder

	for {
		tok, err := p.dec.Token()
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			if err := p.dec.Skip(); err != nil {
				return "", err
			}
		case xml.EndElement:
			return sb.String(), nil
		default:
		}
	}
}

// resyncToReturnEnd abandons the current child element and consumes tokens
// until the enclosing <return> closes, so iteration can continue.
func (p *Parser[R]) resyncToReturnEnd() error {
	// Finish the child element whose start token was already consumed.
	if err := p.dec.Skip(); err != nil {
		return err
	}

	for {
		tok, err := p.dec.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := p.dec.Skip(); err != nil {
				return err
			}
		case xml.EndElement:
			if strings.ToLower(t.Name.Local) == returnElement {
				return nil
			}
		default:
		}
	}
}

// readFault extracts the fault text (<Text> for SOAP 1.2, <faultstring> for
// SOAP 1.1) from a <Fault> element.
func (p *Parser[R]) readFault() error {
	message := "Unknown Fault"

	for {
		tok, err := p.dec.Token()
		if err != nil {
			break
		}

		if start, ok := tok.(xml.StartElement); ok {
			local := strings.ToLower(start.Name.Local)
			if local == faultTextElement || local == faultStringElement {
				if text, err := p.readElementText(); err == nil {
					message = strings.TrimSpace(text)
				}

				break
			}

			continue
		}

		if end, ok := tok.(xml.EndElement); ok && strings.ToLower(end.Name.Local) == faultElement {
			break
		}
	}

	return &FaultError{Message: message}
}

// isDoctype reports whether an XML directive is a DOCTYPE declaration.
func isDoctype(directive xml.Directive) bool {
	return bytes.HasPrefix(bytes.TrimSpace(directive), []byte("DOCTYPE"))
}
