package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/tracing"
)

func QueueStatus(queue interfaces.AnalysisQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "QueueStatus", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		respondOK(c, queue.Status())
	}
}

// QueueEnqueue runs one producer pass, pulling unanalyzed messages into
// the queue.
func QueueEnqueue(queue interfaces.AnalysisQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "QueueEnqueue", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		result, err := queue.Fill(ctx, requestUserID(c))
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, result)
	}
}

// QueueDrain runs one consumer pass to completion.
func QueueDrain(queue interfaces.AnalysisQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "QueueDrain", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		result, err := queue.Drain(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, result)
	}
}

func QueueClear(queue interfaces.AnalysisQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "QueueClear", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		respondOK(c, gin.H{"dropped": queue.Clear()})
	}
}
