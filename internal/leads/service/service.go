// Package service provides the admin read surface over leads.
package service

import (
	"context"
	"fmt"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/internal/leads/repository"
	"leadgen_backend/internal/leads/transport"
)

// Service provides read operations for the leads admin surface.
type Service struct {
	repo *repository.Repository
}

// New creates a new leads service.
func New(repo *repository.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (transport.LeadResponse, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return mapLeadResponse(lead), nil
}

func (s *Service) List(ctx context.Context, req transport.ListLeadsRequest) (transport.ListLeadsResponse, error) {
	result, err := s.repo.List(ctx, repository.ListParams{
		Status:   req.Status,
		OfferID:  req.OfferID,
		SourceID: req.SourceID,
		BuyerID:  req.BuyerID,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		return transport.ListLeadsResponse{}, err
	}

	items := make([]transport.LeadResponse, 0, len(result.Items))
	for _, lead := range result.Items {
		items = append(items, mapLeadResponse(lead))
	}

	return transport.ListLeadsResponse{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}, nil
}

// Deliveries returns the recorded delivery attempt history of a lead.
func (s *Service) Deliveries(ctx context.Context, id int64) ([]transport.DeliveryAttemptResponse, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	history, err := lead.AttemptHistory()
	if err != nil {
		return nil, fmt.Errorf("decode delivery history for lead %d: %w", id, err)
	}

	attempts := make([]transport.DeliveryAttemptResponse, 0, len(history))
	for _, record := range history {
		attempts = append(attempts, transport.DeliveryAttemptResponse{
			Attempt:    record.Attempt,
			Channel:    record.Channel,
			Timestamp:  record.Timestamp,
			HTTPStatus: record.HTTPStatus,
			Success:    record.Success,
			Error:      record.Error,
		})
	}
	return attempts, nil
}

func mapLeadResponse(lead domain.Lead) transport.LeadResponse {
	return transport.LeadResponse{
		ID:                lead.ID,
		SourceID:          lead.SourceID,
		OfferID:           lead.OfferID,
		MarketID:          lead.MarketID,
		VerticalID:        lead.VerticalID,
		IdempotencyKey:    lead.IdempotencyKey,
		Name:              lead.Name,
		Email:             lead.Email,
		Phone:             lead.Phone,
		CountryCode:       lead.CountryCode,
		PostalCode:        lead.PostalCode,
		City:              lead.City,
		RegionCode:        lead.RegionCode,
		Message:           lead.Message,
		NormalizedEmail:   lead.NormalizedEmail,
		NormalizedPhone:   lead.NormalizedPhone,
		UTMSource:         lead.UTMSource,
		UTMMedium:         lead.UTMMedium,
		UTMCampaign:       lead.UTMCampaign,
		Status:            string(lead.Status),
		ValidationReason:  lead.ValidationReason,
		IsDuplicate:       lead.IsDuplicate,
		DuplicateOfLeadID: lead.DuplicateOfLeadID,
		BuyerID:           lead.BuyerID,
		DeliveryAttempts:  lead.DeliveryAttempts,
		DeliveredAt:       lead.DeliveredAt,
		BillingStatus:     string(lead.BillingStatus),
		PriceCents:        lead.PriceCents,
		BilledAt:          lead.BilledAt,
		CreatedAt:         lead.CreatedAt,
		UpdatedAt:         lead.UpdatedAt,
	}
}
