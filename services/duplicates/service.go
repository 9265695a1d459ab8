package duplicates

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
)

const (
	// Two payments within this window can belong to the same transaction
	// seen twice (receipt plus card alert, forwarded copy, etc).
	dateWindow = 24 * time.Hour

	amountEpsilon = 0.01
)

type duplicateService struct {
	records interfaces.AnalysisRecordRepository
	log     logger.Logger
}

func NewDuplicateService(records interfaces.AnalysisRecordRepository, log logger.Logger) interfaces.DuplicateService {
	return &duplicateService{records: records, log: log}
}

// Detect computes duplicate groups for the user's payment records without
// persisting anything. Records group when their payment dates are within a
// day, amounts match within epsilon, and merchants are similar; a date or
// amount absent from either record drops that criterion from the check.
func (s *duplicateService) Detect(ctx context.Context, userID string) ([]dto.DuplicateGroup, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "duplicateService.Detect")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, userID)

	records, err := s.records.ListPaymentsForDedup(ctx, userID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	groups := groupRecords(records)
	span.SetTag("groups.count", len(groups))
	return groups, nil
}

// MarkDuplicates recomputes groups from scratch and persists the result:
// prior duplicate marks are cleared first, so detection always sees the
// full record set.
func (s *duplicateService) MarkDuplicates(ctx context.Context, userID string) ([]dto.DuplicateGroup, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "duplicateService.MarkDuplicates")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, userID)

	if _, err := s.records.ResetDuplicates(ctx, userID); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	groups, err := s.Detect(ctx, userID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	for _, group := range groups {
		for _, duplicateID := range group.DuplicateIDs {
			if err := s.records.MarkDuplicate(ctx, duplicateID, group.PrimaryID); err != nil {
				tracing.TraceErr(span, err)
				return nil, err
			}
		}
	}

	s.log.Infof("Marked %d duplicate groups for user %s", len(groups), userID)
	return groups, nil
}

func (s *duplicateService) ResetDuplicates(ctx context.Context, userID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "duplicateService.ResetDuplicates")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, userID)

	cleared, err := s.records.ResetDuplicates(ctx, userID)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	span.SetTag("cleared", cleared)
	return cleared, nil
}

// groupRecords partitions records into duplicate groups greedily: each
// unassigned record seeds a group and pulls in every later record that
// matches it. The group's primary is its most detailed record.
func groupRecords(records []*models.AnalysisRecord) []dto.DuplicateGroup {
	assigned := make(map[string]bool, len(records))
	groups := make([]dto.DuplicateGroup, 0)

	for i, seed := range records {
		if assigned[seed.ID] {
			continue
		}
		members := []*models.AnalysisRecord{seed}
		for _, candidate := range records[i+1:] {
			if assigned[candidate.ID] {
				continue
			}
			if recordsMatch(seed, candidate) {
				members = append(members, candidate)
				assigned[candidate.ID] = true
			}
		}
		if len(members) < 2 {
			continue
		}
		assigned[seed.ID] = true

		primary := pickPrimary(members)
		group := dto.DuplicateGroup{PrimaryID: primary.ID}
		for _, member := range members {
			if member.ID != primary.ID {
				group.DuplicateIDs = append(group.DuplicateIDs, member.ID)
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// recordsMatch applies the grouping criteria that both records carry a
// value for. A date or amount missing on either side is skipped, not
// treated as a mismatch: extraction gaps should not hide duplicates.
func recordsMatch(a, b *models.AnalysisRecord) bool {
	if a.PaymentDate != nil && b.PaymentDate != nil {
		delta := a.PaymentDate.Sub(*b.PaymentDate)
		if delta < 0 {
			delta = -delta
		}
		if delta > dateWindow {
			return false
		}
	}

	if a.Amount != nil && b.Amount != nil && math.Abs(*a.Amount-*b.Amount) > amountEpsilon {
		return false
	}

	return merchantsSimilar(a.Merchant, b.Merchant)
}

// pickPrimary selects the most informative record; ties break to the
// earliest created.
func pickPrimary(members []*models.AnalysisRecord) *models.AnalysisRecord {
	sorted := make([]*models.AnalysisRecord, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].DetailScore(), sorted[j].DetailScore()
		if si != sj {
			return si > sj
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted[0]
}
