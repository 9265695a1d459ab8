package collector

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"net/http"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/opentracing/opentracing-go"

	"github.com/payradar/payradar/config"
	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
)

// collectorService assembles the bounded evidence file set handed to the
// classifier alongside a message's text.
type collectorService struct {
	cfg         *config.CollectorConfig
	attachments interfaces.AttachmentRepository
	log         logger.Logger
	httpClient  *http.Client
}

func NewCollectorService(cfg *config.CollectorConfig, attachments interfaces.AttachmentRepository, log logger.Logger) interfaces.CollectorService {
	return &collectorService{
		cfg:         cfg,
		attachments: attachments,
		log:         log,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.DownloadTimeoutSeconds) * time.Second,
		},
	}
}

// Collect gathers evidence in priority order: stored PDFs first, then
// remote images referenced by the HTML body, then stored inline images.
// The set is capped at MaxFiles; collection stops as soon as the cap is
// reached.
func (s *collectorService) Collect(ctx context.Context, message *models.Message) ([]dto.EvidenceFile, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "collectorService.Collect")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, message.ID)

	stored, err := s.attachments.ListByMessage(ctx, message.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	files := make([]dto.EvidenceFile, 0, s.cfg.MaxFiles)
	files = s.collectPDFs(ctx, stored, files)
	if len(files) < s.cfg.MaxFiles {
		files = s.collectRemoteImages(ctx, message, files)
	}
	if len(files) < s.cfg.MaxFiles {
		files = s.collectInlineImages(ctx, stored, files)
	}

	span.SetTag("files.count", len(files))
	return files, nil
}

func (s *collectorService) collectPDFs(ctx context.Context, stored []*models.Attachment, files []dto.EvidenceFile) []dto.EvidenceFile {
	pdfs := 0
	for _, att := range stored {
		if len(files) >= s.cfg.MaxFiles || pdfs >= s.cfg.MaxPDFs {
			break
		}
		if !att.IsPDF() {
			continue
		}
		if att.Size > s.cfg.MaxPDFBytes {
			s.log.Debugf("Skipping oversized PDF %s (%d bytes)", att.ID, att.Size)
			continue
		}
		payload, err := s.attachments.GetPayload(ctx, att.ID)
		if err != nil {
			s.log.Warnf("Failed to load PDF payload %s: %v", att.ID, err)
			continue
		}
		if len(payload) == 0 || len(payload) > s.cfg.MaxPDFBytes {
			continue
		}
		files = append(files, dto.EvidenceFile{
			Filename: att.Filename,
			MimeType: "application/pdf",
			Data:     base64.StdEncoding.EncodeToString(payload),
		})
		pdfs++
	}
	return files
}

func (s *collectorService) collectRemoteImages(ctx context.Context, message *models.Message, files []dto.EvidenceFile) []dto.EvidenceFile {
	if message.BodyHTML == "" {
		return files
	}

	for _, url := range extractImageURLs(message.BodyHTML) {
		if len(files) >= s.cfg.MaxFiles {
			break
		}
		// Tracking pixels are filtered before any network call.
		if isLikelyTrackingPixel(url) {
			continue
		}
		data, contentType, err := s.downloadImage(ctx, url)
		if err != nil {
			s.log.Debugf("Image download skipped for %s: %v", url, err)
			continue
		}
		if !s.imageAcceptable(data) {
			continue
		}
		files = append(files, dto.EvidenceFile{
			Filename: filenameFromURL(url),
			MimeType: contentType,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return files
}

func (s *collectorService) collectInlineImages(ctx context.Context, stored []*models.Attachment, files []dto.EvidenceFile) []dto.EvidenceFile {
	for _, att := range stored {
		if len(files) >= s.cfg.MaxFiles {
			break
		}
		if !att.IsImage() || !att.IsInline {
			continue
		}
		if att.Size > 0 && (att.Size < s.cfg.MinImageBytes || att.Size > s.cfg.MaxImageBytes) {
			continue
		}
		payload, err := s.attachments.GetPayload(ctx, att.ID)
		if err != nil {
			s.log.Warnf("Failed to load inline image payload %s: %v", att.ID, err)
			continue
		}
		if !s.imageAcceptable(payload) {
			continue
		}
		files = append(files, dto.EvidenceFile{
			Filename: att.Filename,
			MimeType: att.ContentType,
			Data:     base64.StdEncoding.EncodeToString(payload),
		})
	}
	return files
}

// imageAcceptable applies byte-size bounds and the minimum-dimension
// filter. Images whose dimensions cannot be decoded are kept; only images
// provably smaller than the minimum are rejected.
func (s *collectorService) imageAcceptable(data []byte) bool {
	if len(data) < s.cfg.MinImageBytes || len(data) > s.cfg.MaxImageBytes {
		return false
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return true
	}
	return cfg.Width >= s.cfg.MinImageDimension && cfg.Height >= s.cfg.MinImageDimension
}

func filenameFromURL(url string) string {
	trimmed := url
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 && idx < len(trimmed)-1 {
		return trimmed[idx+1:]
	}
	return "image"
}
