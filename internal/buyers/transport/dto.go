package transport

import "time"

type CreateBuyerRequest struct {
	Name                    string `json:"name" validate:"required,min=1,max=255"`
	Email                   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone                   string `json:"phone,omitempty" validate:"omitempty,max=50"`
	WebhookURL              string `json:"webhookUrl,omitempty" validate:"omitempty,url"`
	WebhookSecret           string `json:"webhookSecret,omitempty" validate:"omitempty,min=16,max=255"`
	EmailNotifications      *bool  `json:"emailNotifications,omitempty"`
	SMSNotifications        *bool  `json:"smsNotifications,omitempty"`
	PricePerLeadCents       *int64 `json:"pricePerLeadCents,omitempty" validate:"omitempty,gt=0"`
	MinBalanceRequiredCents *int64 `json:"minBalanceRequiredCents,omitempty" validate:"omitempty,gte=0"`
	RoutingPriority         int    `json:"routingPriority,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type UpdateBuyerRequest struct {
	Name                    *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Email                   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone                   *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	WebhookURL              *string `json:"webhookUrl,omitempty" validate:"omitempty,url"`
	WebhookSecret           *string `json:"webhookSecret,omitempty" validate:"omitempty,min=16,max=255"`
	EmailNotifications      *bool   `json:"emailNotifications,omitempty"`
	SMSNotifications        *bool   `json:"smsNotifications,omitempty"`
	PricePerLeadCents       *int64  `json:"pricePerLeadCents,omitempty" validate:"omitempty,gt=0"`
	MinBalanceRequiredCents *int64  `json:"minBalanceRequiredCents,omitempty" validate:"omitempty,gte=0"`
	RoutingPriority         *int    `json:"routingPriority,omitempty" validate:"omitempty,gte=0,lte=100"`
	IsActive                *bool   `json:"isActive,omitempty"`
}

// BuyerResponse never carries the webhook secret.
type BuyerResponse struct {
	ID                      int64     `json:"id"`
	Name                    string    `json:"name"`
	Email                   *string   `json:"email,omitempty"`
	Phone                   *string   `json:"phone,omitempty"`
	WebhookURL              *string   `json:"webhookUrl,omitempty"`
	EmailNotifications      bool      `json:"emailNotifications"`
	SMSNotifications        bool      `json:"smsNotifications"`
	BalanceCents            int64     `json:"balanceCents"`
	PricePerLeadCents       *int64    `json:"pricePerLeadCents,omitempty"`
	MinBalanceRequiredCents *int64    `json:"minBalanceRequiredCents,omitempty"`
	RoutingPriority         int       `json:"routingPriority"`
	IsActive                bool      `json:"isActive"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

type BuyerDetailResponse struct {
	BuyerResponse
	TotalLeads     int `json:"totalLeads"`
	DeliveredLeads int `json:"deliveredLeads"`
}

type ListBuyersRequest struct {
	Search   string `form:"search" validate:"omitempty,max=100"`
	Active   *bool  `form:"active"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type ListBuyersResponse struct {
	Items      []BuyerResponse `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}

type EnrollOfferRequest struct {
	OfferID               int64      `json:"offerId" validate:"required,gt=0"`
	PricePerLeadCents     *int64     `json:"pricePerLeadCents,omitempty" validate:"omitempty,gt=0"`
	WebhookURLOverride    string     `json:"webhookUrlOverride,omitempty" validate:"omitempty,url"`
	WebhookSecretOverride string     `json:"webhookSecretOverride,omitempty" validate:"omitempty,min=16,max=255"`
	EmailOverride         string     `json:"emailOverride,omitempty" validate:"omitempty,email"`
	CapacityPerDay        *int       `json:"capacityPerDay,omitempty" validate:"omitempty,gt=0"`
	CapacityPerHour       *int       `json:"capacityPerHour,omitempty" validate:"omitempty,gt=0"`
	RoutingPriority       *int       `json:"routingPriority,omitempty" validate:"omitempty,gte=0,lte=100"`
	PauseUntil            *time.Time `json:"pauseUntil,omitempty"`
}

type BuyerOfferResponse struct {
	ID                 int64      `json:"id"`
	OfferID            int64      `json:"offerId"`
	OfferName          string     `json:"offerName"`
	PricePerLeadCents  *int64     `json:"pricePerLeadCents,omitempty"`
	WebhookURLOverride *string    `json:"webhookUrlOverride,omitempty"`
	EmailOverride      *string    `json:"emailOverride,omitempty"`
	CapacityPerDay     *int       `json:"capacityPerDay,omitempty"`
	CapacityPerHour    *int       `json:"capacityPerHour,omitempty"`
	RoutingPriority    *int       `json:"routingPriority,omitempty"`
	PauseUntil         *time.Time `json:"pauseUntil,omitempty"`
	IsActive           bool       `json:"isActive"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type ListBuyerOffersResponse struct {
	Offers []BuyerOfferResponse `json:"offers"`
}

type AddServiceAreaRequest struct {
	MarketID   int64  `json:"marketId" validate:"required,gt=0"`
	ScopeType  string `json:"scopeType" validate:"required,oneof=postal_code city"`
	ScopeValue string `json:"scopeValue" validate:"required,min=1,max=50"`
}

type ServiceAreaResponse struct {
	ID         int64     `json:"id"`
	MarketID   int64     `json:"marketId"`
	ScopeType  string    `json:"scopeType"`
	ScopeValue string    `json:"scopeValue"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ListServiceAreasResponse struct {
	Areas []ServiceAreaResponse `json:"areas"`
}

type GrantExclusivityRequest struct {
	OfferID    int64  `json:"offerId" validate:"required,gt=0"`
	ScopeType  string `json:"scopeType" validate:"required,oneof=postal_code city"`
	ScopeValue string `json:"scopeValue" validate:"required,min=1,max=50"`
}

type ExclusivityResponse struct {
	ID         int64     `json:"id"`
	OfferID    int64     `json:"offerId"`
	ScopeType  string    `json:"scopeType"`
	ScopeValue string    `json:"scopeValue"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ListExclusivitiesResponse struct {
	Exclusivities []ExclusivityResponse `json:"exclusivities"`
}
