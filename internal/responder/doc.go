// Package responder implements the mock SOAP service the driver is pointed at
// during local runs. It parses each request envelope, echoes the parameter and
// request identifier back, and can inject failures or latency on demand.
package responder
