package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/payradar/payradar/config"
	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/tracing"
)

type classifierService struct {
	cfg        *config.ClassifierConfig
	httpClient *http.Client
}

func NewClassifierService(cfg *config.ClassifierConfig) interfaces.ClassifierService {
	return &classifierService{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Classify posts one message's content to the external classifier and
// returns the structured verdict plus the raw response body for the
// persisted record. Any failure is a ClassifierError; the caller persists
// nothing partial.
func (s *classifierService) Classify(ctx context.Context, request dto.ClassifyRequest) (*dto.ClassifyResponse, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "classifierService.Classify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("files.count", len(request.Files))

	if request.Model == "" {
		request.Model = s.cfg.Model
	}

	payload, err := json.Marshal(request)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL+"/v1/classify", bytes.NewBuffer(payload))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-KEY", s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		wrapped := &errs.ClassifierError{Err: errors.Wrap(err, "request failed")}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		wrapped := &errs.ClassifierError{StatusCode: resp.StatusCode, Err: errors.Wrap(err, "unable to read response body")}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		wrapped := &errs.ClassifierError{
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("status %d: %s", resp.StatusCode, truncateBody(body)),
		}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	var response dto.ClassifyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		wrapped := &errs.ClassifierError{StatusCode: resp.StatusCode, Err: errors.Wrap(err, "failed to unmarshal response")}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	// Keep the raw body for auditing on the record.
	raw := map[string]interface{}{}
	if err := json.Unmarshal(body, &raw); err == nil {
		response.Raw = raw
	}

	span.SetTag("is-payment", response.Payment.IsPayment)
	return &response, nil
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
