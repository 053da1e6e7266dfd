// Package envelope builds and parses the SOAP 1.1 envelopes exchanged between
// the soapfire driver and a target service.
//
// # Requests
//
// [Encode] renders one request from a sequence number and a worker identity:
//
//	req := envelope.Encode(envelope.EncodeOptions{
//		Method:    "ApiMethod",
//		Namespace: "http://ApiAtackDriverExampleProgram.com/",
//		Action:    "http://ApiAtackDriverExampleProgram.com/IService/ApiMethod",
//		Sequence:  42,
//		Worker:    "W01J...",
//		BaseParam: 1000,
//	})
//
// The returned [Request] carries the body, the transport headers
// (Content-Type, Content-Length, SOAPAction) and the identifier embedded in
// the body.
//
// # Responses
//
// [EncodeResponse] renders the synthetic reply produced by the mock responder
// and [DecodeResponse] reads it back on the driver side for echo verification.
//
// # Element trees
//
// [Parse] turns an XML document into a namespace-resolved [Node] tree. Lookups
// by namespace and local name are left to callers so they can choose their own
// fallback order.
package envelope
