package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/safar/peptide-shop/internal/models"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

const brand = "Rejuvenexx"

var funcs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"date":  func(t time.Time) string { return t.Format("January 2, 2006") },
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

// Templates renders the HTML bodies of every outbound email.
type Templates struct {
	set *template.Template
}

func ParseTemplates() (*Templates, error) {
	set, err := template.New("notify").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Templates{set: set}, nil
}

type orderView struct {
	Brand    string
	Order    *models.Order
	Previous models.OrderStatus
}

type affiliateView struct {
	Brand     string
	Affiliate *models.Affiliate
}

func (t *Templates) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.set.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (t *Templates) OrderConfirmation(order *models.Order) (string, error) {
	return t.render("order_confirmation.html", orderView{Brand: brand, Order: order})
}

func (t *Templates) AdminNewOrder(order *models.Order) (string, error) {
	return t.render("admin_new_order.html", orderView{Brand: brand, Order: order})
}

func (t *Templates) OrderStatus(order *models.Order, previous models.OrderStatus) (string, error) {
	return t.render("order_status.html", orderView{Brand: brand, Order: order, Previous: previous})
}

func (t *Templates) AffiliateStatus(a *models.Affiliate) (string, error) {
	return t.render("affiliate_status.html", affiliateView{Brand: brand, Affiliate: a})
}
