// Package value is the closed set of value shapes that cross the boundary
// between the coordinator and an executor. Every payload travels as a
// string; the type tag decides how it is parsed back into a runtime value
// and how it is written as a source literal.
package value

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

type Type string

const (
	TypeText      Type = "TEXT"
	TypeJSON      Type = "JSON"
	TypeCSV       Type = "CSV"
	TypeSVG       Type = "SVG"
	TypeBinary    Type = "BINARY"
	TypeError     Type = "ERROR"
	TypeUndefined Type = "UNDEFINED"
)

// Obj is the tagged value. Data is always a string: base64 for BINARY,
// XML text for SVG, delimited text for CSV, a JSON document for JSON.
type Obj struct {
	Type Type   `json:"type" msgpack:"type" validate:"required,oneof=TEXT JSON CSV SVG BINARY ERROR UNDEFINED"`
	Data string `json:"data" msgpack:"data"`
}

func Text(s string) Obj        { return Obj{Type: TypeText, Data: s} }
func Undefined() Obj           { return Obj{Type: TypeUndefined} }
func ErrorObj(msg string) Obj  { return Obj{Type: TypeError, Data: msg} }
func Binary(b []byte) Obj      { return Obj{Type: TypeBinary, Data: base64.StdEncoding.EncodeToString(b)} }
func SVGObj(markup string) Obj { return Obj{Type: TypeSVG, Data: markup} }

// JSON encodes v as a JSON Obj.
func JSON(v any) (Obj, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Obj{}, fmt.Errorf("encode json value: %w", err)
	}
	return Obj{Type: TypeJSON, Data: string(data)}, nil
}

// CSV encodes records as a CSV Obj.
func CSV(records [][]string) (Obj, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return Obj{}, fmt.Errorf("encode csv value: %w", err)
	}
	return Obj{Type: TypeCSV, Data: buf.String()}, nil
}

// SVG is the runtime shape of an SVG value on the Go side.
type SVG struct {
	Markup string
}

// UndefinedValue is the runtime shape of UNDEFINED on the Go side.
type UndefinedValue struct{}

// RuntimeError is the runtime shape of ERROR: an error object that can be
// handed to a script but never written as source.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string { return e.Message }

// Parse turns o into its runtime value:
//
//	TEXT      string
//	JSON      decoded document (map[string]any, []any, float64, bool, nil)
//	CSV       [][]string
//	SVG       SVG
//	BINARY    []byte
//	ERROR     *RuntimeError
//	UNDEFINED UndefinedValue
func Parse(o Obj) (any, error) {
	switch o.Type {
	case TypeText:
		return o.Data, nil
	case TypeJSON:
		var v any
		if err := json.Unmarshal([]byte(o.Data), &v); err != nil {
			return nil, fmt.Errorf("parse json value: %w", err)
		}
		return v, nil
	case TypeCSV:
		return ParseCSV(o.Data)
	case TypeSVG:
		if err := checkSVG(o.Data); err != nil {
			return nil, err
		}
		return SVG{Markup: o.Data}, nil
	case TypeBinary:
		b, err := base64.StdEncoding.DecodeString(o.Data)
		if err != nil {
			return nil, fmt.Errorf("parse binary value: %w", err)
		}
		return b, nil
	case TypeError:
		return &RuntimeError{Message: o.Data}, nil
	case TypeUndefined:
		return UndefinedValue{}, nil
	default:
		return nil, fmt.Errorf("unknown value type %q", o.Type)
	}
}

// From classifies a runtime value and encodes it. It is the inverse of
// Parse for every type.
func From(v any) (Obj, error) {
	switch t := v.(type) {
	case UndefinedValue:
		return Undefined(), nil
	case string:
		if looksLikeSVG(t) {
			return SVGObj(t), nil
		}
		return Text(t), nil
	case SVG:
		return SVGObj(t.Markup), nil
	case []byte:
		return Binary(t), nil
	case [][]string:
		return CSV(t)
	case *RuntimeError:
		return ErrorObj(t.Message), nil
	case error:
		return ErrorObj(t.Error()), nil
	default:
		return JSON(v)
	}
}

// ParseCSV reads delimited text, skipping empty lines and allowing ragged
// rows.
func ParseCSV(data string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv value: %w", err)
	}
	if records == nil {
		records = [][]string{}
	}
	return records, nil
}

func looksLikeSVG(s string) bool {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "<svg") && !strings.HasPrefix(t, "<?xml") {
		return false
	}
	return checkSVG(t) == nil
}

// checkSVG verifies that markup is well-formed XML whose root element is svg.
func checkSVG(markup string) error {
	dec := xml.NewDecoder(strings.NewReader(markup))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("parse svg value: no root element")
		}
		if err != nil {
			return fmt.Errorf("parse svg value: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			if se.Name.Local != "svg" {
				return fmt.Errorf("parse svg value: root element is %q", se.Name.Local)
			}
			break
		}
	}
	for {
		if _, err := dec.Token(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("parse svg value: %w", err)
		}
	}
}

// Stringify renders v for a text-like canvas object: strings verbatim,
// everything else as indented JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case SVG:
		return t.Markup
	case UndefinedValue:
		return "undefined"
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case error:
		return t.Error()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
