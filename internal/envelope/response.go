package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	ResultStatusSuccess = "SUCCESS"

	statusElement    = "status"
	paramEchoElement = "receivedParam"
	timestampElement = "timestamp"
	idEchoElement    = "received_request_id"
)

// ResponseOptions describe the synthetic reply rendered by the mock responder.
type ResponseOptions struct {
	Method    string
	Namespace string
	Param     string
	RequestID string
	Timestamp time.Time
}

// Result is the decoded <MethodResult> element.
type Result struct {
	Status    string
	Param     string
	Timestamp string
	RequestID string
}

// FormatTimestamp renders t as fractional Unix seconds.
func FormatTimestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/float64(time.Second), 'f', 6, 64)
}

// EncodeResponse renders the success envelope echoing the received fields.
func EncodeResponse(opts ResponseOptions) []byte {
	var buf bytes.Buffer
	buf.Grow(640)
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	buf.WriteString(`<soap:Envelope xmlns:soap="` + SOAPNamespace + `" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema">` + "\n")
	buf.WriteString("    <soap:Body>\n")
	buf.WriteString("        <" + opts.Method + "Response")
	if opts.Namespace != "" {
		buf.WriteString(` xmlns="`)
		escapeInto(&buf, opts.Namespace)
		buf.WriteString(`"`)
	}
	buf.WriteString(">\n")
	buf.WriteString("            <" + opts.Method + "Result>\n")
	writeElement(&buf, "                ", statusElement, ResultStatusSuccess)
	writeElement(&buf, "                ", paramEchoElement, opts.Param)
	writeElement(&buf, "                ", timestampElement, FormatTimestamp(opts.Timestamp))
	writeElement(&buf, "                ", idEchoElement, opts.RequestID)
	buf.WriteString("            </" + opts.Method + "Result>\n")
	buf.WriteString("        </" + opts.Method + "Response>\n")
	buf.WriteString("    </soap:Body>\n")
	buf.WriteString("</soap:Envelope>")
	return buf.Bytes()
}

// DecodeResponse extracts the result element of a <MethodResponse> envelope.
// Namespaces below the SOAP body are ignored.
func DecodeResponse(data []byte, method string) (Result, error) {
	root, err := Parse(data)
	if err != nil {
		return Result{}, err
	}
	body := root.Child(SOAPNamespace, "Body")
	if body == nil {
		return Result{}, errors.New("response: soap body not found")
	}
	resp := body.ChildLocal(method + "Response")
	if resp == nil {
		return Result{}, fmt.Errorf("response: <%sResponse> not found", method)
	}
	result := resp.ChildLocal(method + "Result")
	if result == nil {
		return Result{}, fmt.Errorf("response: <%sResult> not found", method)
	}
	out := Result{}
	if n := result.ChildLocal(statusElement); n != nil {
		out.Status = n.Text
	}
	if n := result.ChildLocal(paramEchoElement); n != nil {
		out.Param = n.Text
	}
	if n := result.ChildLocal(timestampElement); n != nil {
		out.Timestamp = n.Text
	}
	if n := result.ChildLocal(idEchoElement); n != nil {
		out.RequestID = n.Text
	}
	return out, nil
}
