package httpapi

import (
	"strings"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/safar/peptide-shop/internal/orders"
	"github.com/shopspring/decimal"
)

// orderItemRequest carries only what the server trusts. Names and prices sent by older
// clients are ignored; they are read from the catalog.
type orderItemRequest struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type createOrderRequest struct {
	Items []orderItemRequest `json:"items"`
	// OrderItems is accepted as an alias of Items.
	OrderItems      []orderItemRequest     `json:"orderItems"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	PaymentDetails  *models.PaymentDetails `json:"paymentDetails"`
	Shipping        *decimal.Decimal       `json:"shipping"`
	ShippingPrice   *decimal.Decimal       `json:"shippingPrice"`
	Notes           string                 `json:"notes"`
	AffiliateCode   string                 `json:"affiliateCode"`
}

func (req *createOrderRequest) toCommand(requester *models.Requester) (orders.CreateOrderCommand, error) {
	cmd := orders.CreateOrderCommand{
		Requester:       requester,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		Notes:           strings.TrimSpace(req.Notes),
		AffiliateCode:   strings.TrimSpace(req.AffiliateCode),
	}

	items := req.Items
	if len(items) == 0 {
		items = req.OrderItems
	}
	for i, item := range items {
		var productID uuid.UUID
		if raw := strings.TrimSpace(item.Product); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return cmd, apperr.Validation("item %d: invalid product id %q", i, raw)
			}
			productID = id
		}
		cmd.Items = append(cmd.Items, orders.ItemInput{ProductID: productID, Quantity: item.Quantity})
	}

	if req.PaymentDetails != nil {
		cmd.PaymentDetails = *req.PaymentDetails
	}
	switch {
	case req.Shipping != nil:
		cmd.Shipping = *req.Shipping
	case req.ShippingPrice != nil:
		cmd.Shipping = *req.ShippingPrice
	}
	return cmd, nil
}

type updateStatusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"trackingNumber"`
}

type updateStatusResponse struct {
	Order   *models.Order `json:"order"`
	Message string        `json:"message"`
}

type myOrdersResponse struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
	HasMore    bool           `json:"hasMore"`
}

type ordersPageResponse struct {
	Orders []models.Order `json:"orders"`
	Page   int            `json:"page"`
	Pages  int            `json:"pages"`
	Total  int64          `json:"total"`
}

type productsPageResponse struct {
	Products []models.Product `json:"products"`
	Page     int              `json:"page"`
	Pages    int              `json:"pages"`
	Total    int64            `json:"total"`
}

type affiliatesPageResponse struct {
	Affiliates []models.Affiliate `json:"affiliates"`
	Page       int                `json:"page"`
	Pages      int                `json:"pages"`
	Total      int64              `json:"total"`
}

type usersPageResponse struct {
	Users []models.User `json:"users"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
	Total int64         `json:"total"`
}

type createProductRequest struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  *uuid.UUID      `json:"categoryId"`
	Stock       int             `json:"stock"`
	Active      *bool           `json:"isActive"`
}

func (req *createProductRequest) toProduct() (*models.Product, error) {
	sku := strings.TrimSpace(req.SKU)
	name := strings.TrimSpace(req.Name)
	if sku == "" || name == "" {
		return nil, apperr.Validation("sku and name are required")
	}
	if req.Price.IsNegative() {
		return nil, apperr.Validation("price must not be negative")
	}
	if req.Stock < 0 {
		return nil, apperr.Validation("stock must not be negative")
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &models.Product{
		SKU:         sku,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price.Round(2),
		CategoryID:  req.CategoryID,
		Stock:       req.Stock,
		Active:      active,
	}, nil
}

type updateStockRequest struct {
	Stock   *int `json:"stock"`
	Version *int `json:"version"`
}

type createCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type applyAffiliateRequest struct {
	Website     string `json:"website"`
	SocialMedia string `json:"socialMedia"`
}

type affiliateStatusRequest struct {
	Status string `json:"status"`
}

type commissionRequest struct {
	Commission *decimal.Decimal `json:"commission"`
}

type validateCodeResponse struct {
	Valid bool   `json:"valid"`
	Code  string `json:"code"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type updateProductRequest struct {
	SKU         *string          `json:"sku"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	CategoryID  *uuid.UUID       `json:"categoryId"`
	Active      *bool            `json:"isActive"`
}

// trimmed returns nil for a nil or blank value so that it leaves the field unchanged.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func (req *updateProductRequest) toUpdate() (models.ProductUpdate, error) {
	update := models.ProductUpdate{
		SKU:        trimmed(req.SKU),
		Name:       trimmed(req.Name),
		CategoryID: req.CategoryID,
		Active:     req.Active,
	}
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		update.Description = &d
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return update, apperr.Validation("price must not be negative")
		}
		p := req.Price.Round(2)
		update.Price = &p
	}
	return update, nil
}

type updateCategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type peptideUsageRequest struct {
	Disclaimer   *string `json:"disclaimer"`
	Instructions *string `json:"instructions"`
}

type peptideRequest struct {
	Name            *string               `json:"name"`
	ShortName       *string               `json:"shortName"`
	Description     *string               `json:"description"`
	Usage           *peptideUsageRequest  `json:"usage"`
	ResearchInfo    []models.ResearchInfo `json:"researchInfo"`
	RelatedProducts []uuid.UUID           `json:"relatedProducts"`
	Active          *bool                 `json:"isActive"`
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func (req *peptideRequest) toPeptide() (*models.Peptide, error) {
	peptide := &models.Peptide{
		Name:            valueOf(req.Name),
		ShortName:       valueOf(req.ShortName),
		Description:     valueOf(req.Description),
		ResearchInfo:    req.ResearchInfo,
		RelatedProducts: req.RelatedProducts,
		Active:          true,
	}
	if req.Usage != nil {
		peptide.Usage.Disclaimer = valueOf(req.Usage.Disclaimer)
		peptide.Usage.Instructions = valueOf(req.Usage.Instructions)
	}
	if req.Active != nil {
		peptide.Active = *req.Active
	}

	switch {
	case peptide.Name == "":
		return nil, apperr.Validation("name is required")
	case peptide.Description == "":
		return nil, apperr.Validation("description is required")
	case peptide.Usage.Disclaimer == "":
		return nil, apperr.Validation("usage disclaimer is required")
	}
	return peptide, nil
}

func (req *peptideRequest) toUpdate() models.PeptideUpdate {
	update := models.PeptideUpdate{
		Name:        trimmed(req.Name),
		Description: trimmed(req.Description),
		Active:      req.Active,
	}
	if req.ShortName != nil {
		s := strings.TrimSpace(*req.ShortName)
		update.ShortName = &s
	}
	if req.Usage != nil {
		update.Disclaimer = trimmed(req.Usage.Disclaimer)
		if req.Usage.Instructions != nil {
			s := strings.TrimSpace(*req.Usage.Instructions)
			update.Instructions = &s
		}
	}
	if req.ResearchInfo != nil {
		update.ResearchInfo = &req.ResearchInfo
	}
	if req.RelatedProducts != nil {
		update.RelatedProducts = &req.RelatedProducts
	}
	return update
}

type peptidesPageResponse struct {
	Peptides []models.Peptide `json:"peptides"`
	Page     int              `json:"page"`
	Pages    int              `json:"pages"`
	Total    int64            `json:"total"`
}

type userRoleRequest struct {
	Role string `json:"role"`
}

type userRoleResponse struct {
	User    *models.User `json:"user"`
	Message string       `json:"message"`
}
