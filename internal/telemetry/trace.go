package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan starts a span on the named tracer.
//
//	ctx, span := telemetry.StartSpan(ctx, "storeapi/services/directory", "directory.RunSync",
//	    attribute.String(telemetry.AttrSyncRunID, run.ID),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records err on the span and marks it failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds a named event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Span attribute keys
const (
	AttrSyncRunID     = "sync.run_id"
	AttrSyncProcessed = "sync.processed"
	AttrSyncCreated   = "sync.created"
	AttrSyncUpdated   = "sync.updated"
	AttrSyncUnchanged = "sync.unchanged"
	AttrSyncSkipped   = "sync.skipped"
	AttrSyncTrigger   = "sync.trigger"

	AttrUserExternalID = "user.external_id"

	AttrPrincipalID     = "principal.id"
	AttrPrincipalScheme = "principal.scheme"
	AttrPrincipalRole   = "principal.role"

	AttrPolicyObject  = "policy.object"
	AttrPolicyAction  = "policy.action"
	AttrPolicyAllowed = "policy.allowed"
)
