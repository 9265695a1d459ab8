package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/tracing"
)

func GetMessage(messages interfaces.MessageRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "GetMessage", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		messageID := c.Param("id")
		tracing.TagEntity(span, messageID)

		message, err := messages.GetByID(ctx, messageID)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		if message == nil {
			respondError(c, errors.Wrapf(errs.ErrNotFound, "message %s", messageID))
			return
		}
		respondOK(c, message)
	}
}

// AnalyzeMessage classifies one message. force=true discards any existing
// record first.
func AnalyzeMessage(analysisService interfaces.AnalysisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "AnalyzeMessage", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		messageID := c.Param("id")
		tracing.TagEntity(span, messageID)
		force := c.Query("force") == "true"

		record, err := analysisService.Analyze(ctx, messageID, force)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, record)
	}
}

type analyzeBatchRequest struct {
	UserID string `json:"userId"`
	Limit  int    `json:"limit"`
	Force  bool   `json:"force"`
}

func AnalyzeBatch(analysisService interfaces.AnalysisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "AnalyzeBatch", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var req analyzeBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			respondBadRequest(c, err.Error())
			return
		}
		if req.UserID == "" {
			req.UserID = requestUserID(c)
		}
		if req.UserID == "" {
			respondBadRequest(c, "userId is required")
			return
		}
		tracing.TagUser(span, req.UserID)

		result, err := analysisService.AnalyzeBatch(ctx, req.UserID, req.Limit, req.Force)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, result)
	}
}
