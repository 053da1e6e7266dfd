// Package soapclient sends rendered SOAP envelopes to a fixed target and folds
// every result, including connection failures, into an [outcome.Record].
//
// # Target
//
// A [Target] names the host, port, path and transport security of the service
// under test:
//
//	target := soapclient.Target{Host: "127.0.0.1", Port: 8000, Path: "/soap/endpoint"}
//	client := soapclient.New(target, soapclient.Options{Timeout: 30 * time.Second})
//	rec := client.Send(ctx, envelope.Encode(opts))
//
// # Connections
//
// Each Send opens a fresh connection and closes it when the response has been
// read. Keep-alives are disabled so no connection is shared between requests.
//
// # Outcomes
//
// Send never returns an error. 2xx responses become successes, other status
// codes become HTTP errors carrying a truncated body, and dial, TLS, timeout or
// framing failures become transport errors.
package soapclient
