package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "fitloop-server/chat-api"

// GetTracer returns the tracer for the chat-api service.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSendSpan starts a span covering the message ingestion pipeline.
func StartSendSpan(ctx context.Context, conversationID, senderID string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "chat.send",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("chat.conversation_id", conversationID),
			attribute.String("chat.sender_id", senderID),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
