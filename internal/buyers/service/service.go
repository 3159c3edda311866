package service

import (
	"context"
	"strings"

	"leadgen_backend/internal/buyers/repository"
	"leadgen_backend/internal/buyers/transport"
	"leadgen_backend/platform/apperr"
	"leadgen_backend/platform/phone"
	"leadgen_backend/platform/sanitize"
)

// Service provides business logic for buyer administration.
type Service struct {
	repo *repository.Repository
}

// New creates a new buyers service.
func New(repo *repository.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, req transport.CreateBuyerRequest) (transport.BuyerResponse, error) {
	email := normalizeOptionalEmail(req.Email)
	contactPhone, err := normalizeOptionalPhone(req.Phone)
	if err != nil {
		return transport.BuyerResponse{}, err
	}

	buyer := repository.Buyer{
		Name:                    sanitize.Text(req.Name),
		Email:                   email,
		Phone:                   contactPhone,
		WebhookURL:              optionalString(strings.TrimSpace(req.WebhookURL)),
		WebhookSecret:           optionalString(req.WebhookSecret),
		EmailNotifications:      boolOrDefault(req.EmailNotifications, true),
		SMSNotifications:        boolOrDefault(req.SMSNotifications, false),
		PricePerLeadCents:       req.PricePerLeadCents,
		MinBalanceRequiredCents: req.MinBalanceRequiredCents,
		RoutingPriority:         req.RoutingPriority,
	}
	if buyer.Name == "" {
		return transport.BuyerResponse{}, apperr.Validation("buyer name is required")
	}

	taken, err := s.repo.NameOrEmailTaken(ctx, buyer.Name, buyer.Email, 0)
	if err != nil {
		return transport.BuyerResponse{}, err
	}
	if taken {
		return transport.BuyerResponse{}, apperr.Conflict("buyer with this name or email already exists")
	}

	created, err := s.repo.Create(ctx, buyer)
	if err != nil {
		return transport.BuyerResponse{}, err
	}

	return mapBuyerResponse(created), nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (transport.BuyerDetailResponse, error) {
	buyer, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.BuyerDetailResponse{}, err
	}
	stats, err := s.repo.Stats(ctx, id)
	if err != nil {
		return transport.BuyerDetailResponse{}, err
	}

	return transport.BuyerDetailResponse{
		BuyerResponse:  mapBuyerResponse(buyer),
		TotalLeads:     stats.TotalLeads,
		DeliveredLeads: stats.DeliveredLeads,
	}, nil
}

func (s *Service) Update(ctx context.Context, id int64, req transport.UpdateBuyerRequest) (transport.BuyerResponse, error) {
	contactPhone, err := normalizeOptionalPhonePtr(req.Phone)
	if err != nil {
		return transport.BuyerResponse{}, err
	}

	update := repository.BuyerUpdate{
		ID:                      id,
		Name:                    normalizeOptionalString(req.Name, sanitize.Text),
		Email:                   normalizeOptionalString(req.Email, normalizeEmail),
		Phone:                   contactPhone,
		WebhookURL:              normalizeOptionalString(req.WebhookURL, strings.TrimSpace),
		WebhookSecret:           req.WebhookSecret,
		EmailNotifications:      req.EmailNotifications,
		SMSNotifications:        req.SMSNotifications,
		PricePerLeadCents:       req.PricePerLeadCents,
		MinBalanceRequiredCents: req.MinBalanceRequiredCents,
		RoutingPriority:         req.RoutingPriority,
		IsActive:                req.IsActive,
	}

	if update.Name != nil || update.Email != nil {
		name := ""
		if update.Name != nil {
			name = *update.Name
		}
		taken, err := s.repo.NameOrEmailTaken(ctx, name, update.Email, id)
		if err != nil {
			return transport.BuyerResponse{}, err
		}
		if taken {
			return transport.BuyerResponse{}, apperr.Conflict("buyer with this name or email already exists")
		}
	}

	updated, err := s.repo.Update(ctx, update)
	if err != nil {
		return transport.BuyerResponse{}, err
	}

	return mapBuyerResponse(updated), nil
}

func (s *Service) List(ctx context.Context, req transport.ListBuyersRequest) (transport.ListBuyersResponse, error) {
	result, err := s.repo.List(ctx, repository.ListParams{
		Search:   req.Search,
		Active:   req.Active,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		return transport.ListBuyersResponse{}, err
	}

	items := make([]transport.BuyerResponse, 0, len(result.Items))
	for _, buyer := range result.Items {
		items = append(items, mapBuyerResponse(buyer))
	}

	return transport.ListBuyersResponse{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}, nil
}

func (s *Service) EnrollOffer(ctx context.Context, buyerID int64, req transport.EnrollOfferRequest) (transport.BuyerOfferResponse, error) {
	if err := s.ensureBuyerExists(ctx, buyerID); err != nil {
		return transport.BuyerOfferResponse{}, err
	}
	offerName, err := s.repo.OfferName(ctx, req.OfferID)
	if err != nil {
		return transport.BuyerOfferResponse{}, err
	}

	enrollment, err := s.repo.EnrollOffer(ctx, repository.EnrollParams{
		BuyerID:               buyerID,
		OfferID:               req.OfferID,
		PricePerLeadCents:     req.PricePerLeadCents,
		WebhookURLOverride:    optionalString(strings.TrimSpace(req.WebhookURLOverride)),
		WebhookSecretOverride: optionalString(req.WebhookSecretOverride),
		EmailOverride:         normalizeOptionalEmail(req.EmailOverride),
		CapacityPerDay:        req.CapacityPerDay,
		CapacityPerHour:       req.CapacityPerHour,
		RoutingPriority:       req.RoutingPriority,
		PauseUntil:            req.PauseUntil,
	})
	if err != nil {
		return transport.BuyerOfferResponse{}, err
	}

	enrollment.OfferName = offerName
	return mapBuyerOfferResponse(enrollment), nil
}

func (s *Service) ListOffers(ctx context.Context, buyerID int64) (transport.ListBuyerOffersResponse, error) {
	if err := s.ensureBuyerExists(ctx, buyerID); err != nil {
		return transport.ListBuyerOffersResponse{}, err
	}

	items, err := s.repo.ListOffers(ctx, buyerID)
	if err != nil {
		return transport.ListBuyerOffersResponse{}, err
	}

	offers := make([]transport.BuyerOfferResponse, 0, len(items))
	for _, enrollment := range items {
		offers = append(offers, mapBuyerOfferResponse(enrollment))
	}

	return transport.ListBuyerOffersResponse{Offers: offers}, nil
}

func (s *Service) AddServiceArea(ctx context.Context, buyerID int64, req transport.AddServiceAreaRequest) (transport.ServiceAreaResponse, error) {
	if err := s.ensureBuyerExists(ctx, buyerID); err != nil {
		return transport.ServiceAreaResponse{}, err
	}
	exists, err := s.repo.MarketExists(ctx, req.MarketID)
	if err != nil {
		return transport.ServiceAreaResponse{}, err
	}
	if !exists {
		return transport.ServiceAreaResponse{}, apperr.NotFound("market not found")
	}

	// Routing matches scope values verbatim against the lead's location,
	// so they are stored exactly as trimmed.
	area, err := s.repo.AddServiceArea(ctx, repository.ServiceArea{
		BuyerID:    buyerID,
		MarketID:   req.MarketID,
		ScopeType:  req.ScopeType,
		ScopeValue: strings.TrimSpace(req.ScopeValue),
	})
	if err != nil {
		return transport.ServiceAreaResponse{}, err
	}

	return mapServiceAreaResponse(area), nil
}

func (s *Service) ListServiceAreas(ctx context.Context, buyerID int64) (transport.ListServiceAreasResponse, error) {
	if err := s.ensureBuyerExists(ctx, buyerID); err != nil {
		return transport.ListServiceAreasResponse{}, err
	}

	items, err := s.repo.ListServiceAreas(ctx, buyerID)
	if err != nil {
		return transport.ListServiceAreasResponse{}, err
	}

	areas := make([]transport.ServiceAreaResponse, 0, len(items))
	for _, area := range items {
		areas = append(areas, mapServiceAreaResponse(area))
	}

	return transport.ListServiceAreasResponse{Areas: areas}, nil
}

func (s *Service) GrantExclusivity(ctx context.Context, buyerID int64, req transport.GrantExclusivityRequest) (transport.ExclusivityResponse, error) {
	if err := s.ensureBuyerExists(ctx, buyerID); err != nil {
		return transport.ExclusivityResponse{}, err
	}
	if _, err := s.repo.OfferName(ctx, req.OfferID); err != nil {
		return transport.ExclusivityResponse{}, err
	}

	grant, err := s.repo.GrantExclusivity(ctx, repository.Exclusivity{
		OfferID:    req.OfferID,
		BuyerID:    buyerID,
		ScopeType:  req.ScopeType,
		ScopeValue: strings.TrimSpace(req.ScopeValue),
	})
	if err != nil {
		return transport.ExclusivityResponse{}, err
	}

	return mapExclusivityResponse(grant), nil
}

func (s *Service) ListExclusivities(ctx context.Context, buyerID int64) (transport.ListExclusivitiesResponse, error) {
	if err := s.ensureBuyerExists(ctx, buyerID); err != nil {
		return transport.ListExclusivitiesResponse{}, err
	}

	items, err := s.repo.ListExclusivities(ctx, buyerID)
	if err != nil {
		return transport.ListExclusivitiesResponse{}, err
	}

	grants := make([]transport.ExclusivityResponse, 0, len(items))
	for _, grant := range items {
		grants = append(grants, mapExclusivityResponse(grant))
	}

	return transport.ListExclusivitiesResponse{Exclusivities: grants}, nil
}

func (s *Service) ensureBuyerExists(ctx context.Context, buyerID int64) error {
	exists, err := s.repo.Exists(ctx, buyerID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("buyer not found")
	}
	return nil
}

func mapBuyerResponse(buyer repository.Buyer) transport.BuyerResponse {
	return transport.BuyerResponse{
		ID:                      buyer.ID,
		Name:                    buyer.Name,
		Email:                   buyer.Email,
		Phone:                   buyer.Phone,
		WebhookURL:              buyer.WebhookURL,
		EmailNotifications:      buyer.EmailNotifications,
		SMSNotifications:        buyer.SMSNotifications,
		BalanceCents:            buyer.BalanceCents,
		PricePerLeadCents:       buyer.PricePerLeadCents,
		MinBalanceRequiredCents: buyer.MinBalanceRequiredCents,
		RoutingPriority:         buyer.RoutingPriority,
		IsActive:                buyer.IsActive,
		CreatedAt:               buyer.CreatedAt,
		UpdatedAt:               buyer.UpdatedAt,
	}
}

func mapBuyerOfferResponse(enrollment repository.BuyerOffer) transport.BuyerOfferResponse {
	return transport.BuyerOfferResponse{
		ID:                 enrollment.ID,
		OfferID:            enrollment.OfferID,
		OfferName:          enrollment.OfferName,
		PricePerLeadCents:  enrollment.PricePerLeadCents,
		WebhookURLOverride: enrollment.WebhookURLOverride,
		EmailOverride:      enrollment.EmailOverride,
		CapacityPerDay:     enrollment.CapacityPerDay,
		CapacityPerHour:    enrollment.CapacityPerHour,
		RoutingPriority:    enrollment.RoutingPriority,
		PauseUntil:         enrollment.PauseUntil,
		IsActive:           enrollment.IsActive,
		CreatedAt:          enrollment.CreatedAt,
		UpdatedAt:          enrollment.UpdatedAt,
	}
}

func mapServiceAreaResponse(area repository.ServiceArea) transport.ServiceAreaResponse {
	return transport.ServiceAreaResponse{
		ID:         area.ID,
		MarketID:   area.MarketID,
		ScopeType:  area.ScopeType,
		ScopeValue: area.ScopeValue,
		IsActive:   area.IsActive,
		CreatedAt:  area.CreatedAt,
	}
}

func mapExclusivityResponse(grant repository.Exclusivity) transport.ExclusivityResponse {
	return transport.ExclusivityResponse{
		ID:         grant.ID,
		OfferID:    grant.OfferID,
		ScopeType:  grant.ScopeType,
		ScopeValue: grant.ScopeValue,
		IsActive:   grant.IsActive,
		CreatedAt:  grant.CreatedAt,
	}
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func normalizeOptionalEmail(value string) *string {
	return optionalString(normalizeEmail(value))
}

func normalizeOptionalPhone(value string) (*string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if !phone.IsValid(trimmed) {
		return nil, apperr.Validation("invalid phone number")
	}
	normalized := phone.NormalizeE164(trimmed)
	return &normalized, nil
}

func normalizeOptionalPhonePtr(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	return normalizeOptionalPhone(*value)
}

func normalizeOptionalString(value *string, fn func(string) string) *string {
	if value == nil {
		return nil
	}
	return optionalString(fn(*value))
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
