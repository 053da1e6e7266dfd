package envelope

import (
	"bytes"
	"encoding/xml"
	"net/http"
	"strconv"
)

const (
	// SOAPNamespace is the SOAP 1.1 envelope namespace.
	SOAPNamespace = "http://schemas.xmlsoap.org/soap/envelope/"

	ContentType = "text/xml; charset=utf-8"

	ParamElement     = "requestParameter"
	RequestIDElement = "requestId"

	// UnknownRequestID is echoed back when a request carries no identifier.
	UnknownRequestID = "N/A"
)

// EncodeOptions describe one request envelope.
type EncodeOptions struct {
	Method    string // body element name, e.g. ApiMethod
	Namespace string // default namespace declared on the method element
	Action    string // SOAPAction header value
	Sequence  int64
	Worker    string
	BaseParam int64
}

// Request is a fully rendered request ready for the transport.
type Request struct {
	Body      []byte
	Header    http.Header
	Param     string
	RequestID string
}

// RequestID formats the identifier for a worker/sequence pair.
func RequestID(worker string, sequence int64) string {
	return worker + "-R" + strconv.FormatInt(sequence, 10)
}

// Encode renders the request envelope and its transport headers.
func Encode(opts EncodeOptions) Request {
	param := strconv.FormatInt(opts.BaseParam+opts.Sequence, 10)
	id := RequestID(opts.Worker, opts.Sequence)

	var buf bytes.Buffer
	buf.Grow(512)
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	buf.WriteString(`<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:soap="` + SOAPNamespace + `">` + "\n")
	buf.WriteString("  <soap:Body>\n")
	buf.WriteString("    <" + opts.Method)
	if opts.Namespace != "" {
		buf.WriteString(` xmlns="`)
		escapeInto(&buf, opts.Namespace)
		buf.WriteString(`"`)
	}
	buf.WriteString(">\n")
	writeElement(&buf, "      ", ParamElement, param)
	writeElement(&buf, "      ", RequestIDElement, id)
	buf.WriteString("    </" + opts.Method + ">\n")
	buf.WriteString("  </soap:Body>\n")
	buf.WriteString("</soap:Envelope>")

	body := buf.Bytes()
	header := make(http.Header, 3)
	header.Set("Content-Type", ContentType)
	header.Set("Content-Length", strconv.Itoa(len(body)))
	header.Set("SOAPAction", opts.Action)

	return Request{
		Body:      body,
		Header:    header,
		Param:     param,
		RequestID: id,
	}
}

// ValidName reports whether s can be used as an unprefixed XML element name.
func ValidName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
		case i > 0 && (r == '-' || r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

func writeElement(buf *bytes.Buffer, indent, name, value string) {
	buf.WriteString(indent + "<" + name + ">")
	escapeInto(buf, value)
	buf.WriteString("</" + name + ">\n")
}

func escapeInto(buf *bytes.Buffer, s string) {
	// EscapeText only fails when the writer does.
	_ = xml.EscapeText(buf, []byte(s))
}
