// Package ingestion provides the SIPSA ingestion control plane: the run
// orchestrator, the per-method handlers, and the audit recorder.
//
// The orchestrator is a sequential state machine per invocation; multiple
// invocations may run concurrently against different (method, windowKey)
// pairs and are serialized by the control store's unique constraint.
package ingestion

import (
	"github.com/sipsa-io/sipsa/internal/storage"
)

// SIPSA method names. These are the SOAP operation names and the registry keys.
const (
	MethodCiudad  = "promediosSipsaCiudad"
	MethodParcial = "promediosSipsaParcial"
	MethodSemana  = "promediosSipsaSemanaMadr"
	MethodMes     = "promediosSipsaMesMadr"
	MethodAbas    = "promedioAbasSipsaMesMadr"
)

// Request describes one ingestion invocation.
type Request struct {
	MethodName string
	RequestID  string
	Source     storage.RequestSource
	Force      bool
}

// ManualRequest builds a request originating from the operational API.
func ManualRequest(methodName, requestID string) Request {
	return Request{MethodName: methodName, RequestID: requestID, Source: storage.SourceManual}
}

// ManualForcedRequest builds a forced request originating from the operational API.
func ManualForcedRequest(methodName, requestID string) Request {
	return Request{MethodName: methodName, RequestID: requestID, Source: storage.SourceManual, Force: true}
}

// ScheduledRequest builds a request originating from the cron scheduler.
func ScheduledRequest(methodName, requestID string) Request {
	return Request{MethodName: methodName, RequestID: requestID, Source: storage.SourceScheduled}
}
