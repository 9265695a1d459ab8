package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/tracing"
)

func ListRecords(records interfaces.AnalysisRecordRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListRecords", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		userID := requestUserID(c)
		if userID == "" {
			respondBadRequest(c, "userId is required")
			return
		}
		tracing.TagUser(span, userID)

		filters := interfaces.RecordFilters{
			OnlyPayments: c.Query("onlyPayments") == "true",
			ExcludeDupes: c.Query("excludeDuplicates") == "true",
			Merchant:     c.Query("merchant"),
			Limit:        parseIntDefault(c.Query("limit"), 50),
			Offset:       parseIntDefault(c.Query("offset"), 0),
		}
		if from, ok := parseDateQuery(c.Query("from")); ok {
			filters.From = &from
		}
		if to, ok := parseDateQuery(c.Query("to")); ok {
			filters.To = &to
		}

		list, total, err := records.ListByUser(ctx, userID, filters)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, gin.H{
			"records": list,
			"total":   total,
		})
	}
}

func MonthlyStats(records interfaces.AnalysisRecordRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "MonthlyStats", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		userID := requestUserID(c)
		if userID == "" {
			respondBadRequest(c, "userId is required")
			return
		}
		tracing.TagUser(span, userID)

		stats, err := records.MonthlyStats(ctx, userID, parseIntDefault(c.Query("months"), 12))
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, stats)
	}
}

func DailyStats(records interfaces.AnalysisRecordRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "DailyStats", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		userID := requestUserID(c)
		if userID == "" {
			respondBadRequest(c, "userId is required")
			return
		}
		tracing.TagUser(span, userID)

		stats, err := records.DailyStats(ctx, userID, parseIntDefault(c.Query("days"), 30))
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, stats)
	}
}

// DetectDuplicates computes duplicate groups without persisting them.
func DetectDuplicates(duplicateService interfaces.DuplicateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "DetectDuplicates", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		userID := requestUserID(c)
		if userID == "" {
			respondBadRequest(c, "userId is required")
			return
		}
		tracing.TagUser(span, userID)

		groups, err := duplicateService.Detect(ctx, userID)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, groups)
	}
}

func MarkDuplicates(duplicateService interfaces.DuplicateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "MarkDuplicates", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		userID := requestUserID(c)
		if userID == "" {
			respondBadRequest(c, "userId is required")
			return
		}
		tracing.TagUser(span, userID)

		groups, err := duplicateService.MarkDuplicates(ctx, userID)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, groups)
	}
}

func ResetDuplicates(duplicateService interfaces.DuplicateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ResetDuplicates", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		userID := requestUserID(c)
		if userID == "" {
			respondBadRequest(c, "userId is required")
			return
		}
		tracing.TagUser(span, userID)

		cleared, err := duplicateService.ResetDuplicates(ctx, userID)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, gin.H{"cleared": cleared})
	}
}

func parseDateQuery(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
