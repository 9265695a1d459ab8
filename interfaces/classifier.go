package interfaces

import (
	"context"

	"github.com/payradar/payradar/dto"
)

type ClassifierService interface {
	Classify(ctx context.Context, request dto.ClassifyRequest) (*dto.ClassifyResponse, error)
}
