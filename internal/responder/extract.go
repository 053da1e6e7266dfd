package responder

import (
	"fmt"

	"github.com/torosent/soapfire/internal/envelope"
)

// LookupStrategy finds a named child element below parent.
type LookupStrategy interface {
	Lookup(parent *envelope.Node, local string) *envelope.Node
	String() string
}

type namespaced string

// Namespaced matches elements qualified with ns.
func Namespaced(ns string) LookupStrategy { return namespaced(ns) }

func (s namespaced) Lookup(parent *envelope.Node, local string) *envelope.Node {
	return parent.Child(string(s), local)
}

func (s namespaced) String() string { return "{" + string(s) + "}" }

type unqualified struct{}

// Unqualified matches elements that carry no namespace.
var Unqualified LookupStrategy = unqualified{}

func (unqualified) Lookup(parent *envelope.Node, local string) *envelope.Node {
	return parent.Child("", local)
}

func (unqualified) String() string { return "{}" }

// Fields are the values pulled out of one request envelope.
type Fields struct {
	Param     string
	RequestID string
}

// ExtractionError reports a request envelope that lacks a required element.
type ExtractionError struct {
	Element string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %v", e.Element, e.Err)
	}
	return fmt.Sprintf("extract %s: element not found", e.Element)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor pulls the parameter and request identifier out of a request
// envelope. Strategies are tried in order and the first match wins.
type Extractor struct {
	Method     string
	Strategies []LookupStrategy
}

// NewExtractor looks elements up in ns first and falls back to unqualified
// names.
func NewExtractor(method, ns string) *Extractor {
	strategies := []LookupStrategy{}
	if ns != "" {
		strategies = append(strategies, Namespaced(ns))
	}
	strategies = append(strategies, Unqualified)
	return &Extractor{Method: method, Strategies: strategies}
}

// Extract parses data and returns its fields. Only the SOAP Body below the
// document element is required; the document element itself is not checked.
// A missing request identifier is reported as envelope.UnknownRequestID.
func (x *Extractor) Extract(data []byte) (Fields, error) {
	root, err := envelope.Parse(data)
	if err != nil {
		return Fields{}, &ExtractionError{Element: "envelope", Err: err}
	}
	body := root.Child(envelope.SOAPNamespace, "Body")
	if body == nil {
		return Fields{}, &ExtractionError{Element: "Body"}
	}
	method := x.find(body, x.Method)
	if method == nil {
		return Fields{}, &ExtractionError{Element: x.Method}
	}
	param := x.find(method, envelope.ParamElement)
	if param == nil {
		return Fields{}, &ExtractionError{Element: envelope.ParamElement}
	}

	fields := Fields{Param: param.Text, RequestID: envelope.UnknownRequestID}
	if id := x.find(method, envelope.RequestIDElement); id != nil && id.Text != "" {
		fields.RequestID = id.Text
	}
	return fields, nil
}

func (x *Extractor) find(parent *envelope.Node, local string) *envelope.Node {
	for _, s := range x.Strategies {
		if n := s.Lookup(parent, local); n != nil {
			return n
		}
	}
	return nil
}
