package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/tracing"
)

// DownloadAttachment streams one attachment payload.
func DownloadAttachment(attachments interfaces.AttachmentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "DownloadAttachment", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		attachmentID := c.Param("id")
		tracing.TagEntity(span, attachmentID)

		attachment, err := attachments.GetByID(ctx, attachmentID)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		if attachment == nil {
			respondError(c, errors.Wrapf(errs.ErrNotFound, "attachment %s", attachmentID))
			return
		}

		payload, err := attachments.GetPayload(ctx, attachmentID)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		contentType := attachment.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if attachment.Filename != "" {
			c.Header("Content-Disposition", `attachment; filename="`+attachment.Filename+`"`)
		}
		c.Data(http.StatusOK, contentType, payload)
	}
}
