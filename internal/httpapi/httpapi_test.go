package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/cache"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/safar/peptide-shop/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler    http.Handler
	orders     *fakeOrders
	affiliates *fakeAffiliates
	catalog    *fakeCatalog
	peptides   *fakePeptides
	users      *fakeUsers
	idem       *memIdempotency
}

func newTestServer(t *testing.T, opts ...func(*Deps)) *testServer {
	t.Helper()
	ts := &testServer{
		orders:     &fakeOrders{},
		affiliates: &fakeAffiliates{codes: map[string]bool{"ABCD1234": true}},
		catalog:    &fakeCatalog{products: map[uuid.UUID]*models.Product{}, categories: map[uuid.UUID]*models.Category{}},
		peptides:   &fakePeptides{peptides: map[uuid.UUID]*models.Peptide{}},
		users:      &fakeUsers{roles: map[uuid.UUID]string{adminUser.ID: models.RoleAdmin, customerUser.ID: models.RoleCustomer}},
		idem:       newMemIdempotency(),
	}
	deps := Deps{
		Orders:      ts.orders,
		Affiliates:  ts.affiliates,
		Catalog:     ts.catalog,
		Peptides:    ts.peptides,
		Users:       ts.users,
		Health:      fakeHealth{},
		Auth:        testAuth(),
		Idempotency: ts.idem,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	ts.handler = NewRouter(deps)
	return ts
}

func (ts *testServer) do(method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const orderBody = `{
	"items": [{"product": "11111111-1111-1111-1111-111111111111", "name": "ignored", "price": 0.01, "quantity": 2}],
	"shippingAddress": {"firstName": "Ada", "lastName": "L", "address": "1 Main", "city": "X", "zipCode": "1", "country": "US"},
	"paymentMethod": "card",
	"shipping": 5,
	"affiliateCode": " ABCD1234 "
}`

func TestCreateOrderAsGuest(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/orders", "", orderBody)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, ts.orders.created, 1)
	cmd := ts.orders.created[0]
	assert.Nil(t, cmd.Requester)
	assert.Equal(t, []orders.ItemInput{{ProductID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), Quantity: 2}}, cmd.Items)
	assert.Equal(t, "5", cmd.Shipping.String())
	assert.Equal(t, "ABCD1234", cmd.AffiliateCode)

	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, "60", order.Total.String())
}

func TestCreateOrderAttachesRequester(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/orders", "customer-token", orderBody)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, customerUser, ts.orders.created[0].Requester)
}

func TestCreateOrderAcceptsLegacyFieldNames(t *testing.T) {
	ts := newTestServer(t)

	body := `{"orderItems": [{"product": "11111111-1111-1111-1111-111111111111", "quantity": 1}], "shippingPrice": "7.50"}`
	rec := ts.do(http.MethodPost, "/orders", "", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	cmd := ts.orders.created[0]
	assert.Len(t, cmd.Items, 1)
	assert.Equal(t, "7.5", cmd.Shipping.String())
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	t.Run("malformed json", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/orders", "", `{"items": [`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation", decodeError(t, rec).Error)
	})

	t.Run("bad product id", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/orders", "", `{"items": [{"product": "nope", "quantity": 1}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec).Message, "invalid product id")
	})

	t.Run("invalid token is not treated as guest", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/orders", "stolen", orderBody)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	assert.Zero(t, ts.orders.createCalls())
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		kind    string
		message string
	}{
		{"insufficient stock", apperr.InsufficientStock("p1", "BPC-157"), http.StatusBadRequest, "insufficient_stock", "not enough stock for BPC-157"},
		{"empty order", apperr.EmptyOrder(), http.StatusBadRequest, "validation", "no order items"},
		{"unknown product", apperr.ProductNotFound("p9"), http.StatusNotFound, "not_found", "product not found: p9"},
		{"timeout", apperr.Timeout(errors.New("deadline")), http.StatusGatewayTimeout, "timeout", "operation timed out"},
		{"store failure", apperr.Transient("insert order", errors.New("pq: relation does not exist")), http.StatusInternalServerError, "transient_store", "internal error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.orders.createFn = func(orders.CreateOrderCommand) (*models.Order, error) { return nil, tc.err }

			rec := ts.do(http.MethodPost, "/orders", "", orderBody)

			assert.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.kind, body.Error)
			assert.Equal(t, tc.message, body.Message)
			assert.NotContains(t, rec.Body.String(), "pq:")
		})
	}
}

func TestGetOrderAuth(t *testing.T) {
	ts := newTestServer(t)
	orderID := uuid.New()
	ts.orders.getFn = func(id uuid.UUID, requester *models.Requester) (*models.Order, error) {
		if !requester.IsAdmin() {
			return nil, apperr.Forbidden("not authorized to view this order")
		}
		return &models.Order{ID: id}, nil
	}

	t.Run("no token", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/orders/"+orderID.String(), "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "not authorized, no token", decodeError(t, rec).Message)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/orders/"+orderID.String(), nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non owner gets no order data", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/orders/"+orderID.String(), "customer-token", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NotContains(t, rec.Body.String(), orderID.String())
	})

	t.Run("admin", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/orders/"+orderID.String(), "admin-token", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unparsable id is not found", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/orders/42", "admin-token", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "order not found: 42", decodeError(t, rec).Message)

		rec = ts.do(http.MethodPut, "/orders/42/status", "admin-token", `{"status":"shipped"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListOrdersRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.listFn = func(_ *models.Requester, status string, page, limit int) (*models.OffsetPage[models.Order], error) {
		assert.Equal(t, "shipped", status)
		return models.NewOffsetPage([]models.Order{{OrderNumber: "ORD-1"}}, 21, page, 10), nil
	}

	rec := ts.do(http.MethodGet, "/orders?status=shipped&page=2", "customer-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not authorized as an admin", decodeError(t, rec).Message)

	rec = ts.do(http.MethodGet, "/orders?status=shipped&page=2", "admin-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["page"])
	assert.EqualValues(t, 3, body["pages"])
	assert.EqualValues(t, 21, body["total"])
	assert.Len(t, body["orders"], 1)
}

func TestListMyOrdersShape(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.myFn = func(requester *models.Requester, cursor string, limit int) (*models.CursorPage[models.Order], error) {
		assert.Equal(t, customerUser.ID, requester.ID)
		assert.Equal(t, "abc", cursor)
		assert.Equal(t, 5, limit)
		return &models.CursorPage[models.Order]{Items: []models.Order{{}}, NextCursor: "next", HasMore: true}, nil
	}

	rec := ts.do(http.MethodGet, "/orders/my-orders?cursor=abc&limit=5", "customer-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body myOrdersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "next", body.NextCursor)
	assert.True(t, body.HasMore)
	assert.Len(t, body.Orders, 1)
	assert.Contains(t, rec.Body.String(), `"nextCursor":"next"`)
	assert.Contains(t, rec.Body.String(), `"hasMore":true`)
}

func TestUpdateOrderStatus(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()

	rec := ts.do(http.MethodPut, "/orders/"+id.String()+"/status", "admin-token", `{"trackingNumber": "TRK"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "status is required", decodeError(t, rec).Message)

	rec = ts.do(http.MethodPut, "/orders/"+id.String()+"/status", "admin-token", `{"status": "shipped", "trackingNumber": "TRK"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Order   models.Order `json:"order"`
		Message string       `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.OrderStatusShipped, body.Order.Status)
	require.NotNil(t, body.Order.TrackingNumber)
	assert.Equal(t, "TRK", *body.Order.TrackingNumber)

	rec = ts.do(http.MethodPut, "/orders/"+id.String()+"/status", "customer-token", `{"status": "shipped"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIdempotentReplay(t *testing.T) {
	ts := newTestServer(t)

	first := ts.do(http.MethodPost, "/orders", "customer-token", orderBody, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := ts.do(http.MethodPost, "/orders", "customer-token", orderBody, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(replayHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, 1, ts.orders.createCalls())
}

func TestIdempotencyKeyReusedWithDifferentBody(t *testing.T) {
	ts := newTestServer(t)

	first := ts.do(http.MethodPost, "/orders", "customer-token", orderBody, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, first.Code)

	other := strings.Replace(orderBody, `"quantity": 2`, `"quantity": 3`, 1)
	rec := ts.do(http.MethodPost, "/orders", "customer-token", other, "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, ts.orders.createCalls())
}

func TestIdempotencyKeysAreScopedToCaller(t *testing.T) {
	ts := newTestServer(t)

	ts.do(http.MethodPost, "/orders", "customer-token", orderBody, "Idempotency-Key", "shared")
	rec := ts.do(http.MethodPost, "/orders", "admin-token", orderBody, "Idempotency-Key", "shared")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get(replayHeader))
	assert.Equal(t, 2, ts.orders.createCalls())
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	ts := newTestServer(t)
	fail := true
	ts.orders.createFn = func(cmd orders.CreateOrderCommand) (*models.Order, error) {
		if fail {
			return nil, apperr.Transient("insert order", errors.New("connection reset"))
		}
		return &models.Order{OrderNumber: "ORD-2"}, nil
	}

	rec := ts.do(http.MethodPost, "/orders", "", orderBody, "Idempotency-Key", "k2")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, ts.idem.aborted)

	fail = false
	rec = ts.do(http.MethodPost, "/orders", "", orderBody, "Idempotency-Key", "k2")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, ts.orders.createCalls())
}

func TestIdempotencyCachesClientErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.createFn = func(orders.CreateOrderCommand) (*models.Order, error) {
		return nil, apperr.InsufficientStock("p1", "BPC-157")
	}

	ts.do(http.MethodPost, "/orders", "", orderBody, "Idempotency-Key", "k3")
	rec := ts.do(http.MethodPost, "/orders", "", orderBody, "Idempotency-Key", "k3")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(replayHeader))
	assert.Equal(t, 1, ts.orders.createCalls())
}

func TestIdempotencyFallsThroughWhenCacheFails(t *testing.T) {
	ts := newTestServer(t)
	ts.idem.fail = errCacheDown

	for i := 0; i < 2; i++ {
		rec := ts.do(http.MethodPost, "/orders", "", orderBody, "Idempotency-Key", "k4")
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Equal(t, 2, ts.orders.createCalls())
}

func TestIdempotencyDisabled(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) { d.Idempotency = nil })

	ts.do(http.MethodPost, "/orders", "", orderBody, "Idempotency-Key", "k5")
	ts.do(http.MethodPost, "/orders", "", orderBody, "Idempotency-Key", "k5")

	assert.Equal(t, 2, ts.orders.createCalls())
}

func TestIdempotencyInProgress(t *testing.T) {
	ts := newTestServer(t)
	ts.idem.records["guest:k6"] = memRecord{hash: requestHash(httptest.NewRequest(http.MethodPost, "/orders", nil), []byte(orderBody))}

	rec := ts.do(http.MethodPost, "/orders", "", orderBody, "Idempotency-Key", "k6")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, ts.orders.createCalls())
}

func TestPanicIsRecovered(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.createFn = func(orders.CreateOrderCommand) (*models.Order, error) { panic("boom") }

	rec := ts.do(http.MethodPost, "/orders", "", orderBody)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeError(t, rec).Message)
}

func TestPanicReleasesIdempotencyKey(t *testing.T) {
	ts := newTestServer(t)
	calls := 0
	ts.orders.createFn = func(cmd orders.CreateOrderCommand) (*models.Order, error) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return &models.Order{ID: uuid.New(), OrderNumber: "ORD-2", Status: models.OrderStatusProcessing}, nil
	}

	first := ts.do(http.MethodPost, "/orders", "customer-token", orderBody, "Idempotency-Key", "kp")
	assert.Equal(t, http.StatusInternalServerError, first.Code)

	second := ts.do(http.MethodPost, "/orders", "customer-token", orderBody, "Idempotency-Key", "kp")
	assert.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	assert.Empty(t, second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 2, calls)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", "", "").Code)

	down := newTestServer(t, func(d *Deps) { d.Health = fakeHealth{err: errors.New("db down")} })
	assert.Equal(t, http.StatusServiceUnavailable, down.do(http.MethodGet, "/healthz", "", "").Code)
}

func TestProducts(t *testing.T) {
	ts := newTestServer(t)
	hidden := &models.Product{ID: uuid.New(), Name: "Hidden", Active: false}
	ts.catalog.products[hidden.ID] = hidden

	t.Run("inactive filter only for admins", func(t *testing.T) {
		ts.do(http.MethodGet, "/products?includeInactive=true", "customer-token", "")
		assert.False(t, ts.catalog.lastFilter.IncludeInactive)

		ts.do(http.MethodGet, "/products?includeInactive=true", "admin-token", "")
		assert.True(t, ts.catalog.lastFilter.IncludeInactive)
	})

	t.Run("inactive product hidden from storefront", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/products/"+hidden.ID.String(), "", "").Code)
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/products/"+hidden.ID.String(), "admin-token", "").Code)
	})

	t.Run("create requires admin", func(t *testing.T) {
		body := `{"sku": "BPC-5", "name": "BPC-157", "price": "25.00", "stock": 10}`
		assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/products", "customer-token", body).Code)

		rec := ts.do(http.MethodPost, "/products", "admin-token", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		var p models.Product
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		assert.True(t, p.Active)
		assert.Equal(t, "25", p.Price.String())
	})

	t.Run("create validates", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/products", "admin-token", `{"sku": "X", "name": "Y", "price": "-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stock update needs version", func(t *testing.T) {
		path := "/products/" + hidden.ID.String() + "/stock"
		assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPut, path, "admin-token", `{"stock": 5}`).Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPut, path, "admin-token", `{"stock": -1, "version": 1}`).Code)
		assert.Equal(t, 0, ts.catalog.stockCalls)

		rec := ts.do(http.MethodPut, path, "admin-token", `{"stock": 5, "version": 1}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, ts.catalog.stockCalls)
	})
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/categories", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/categories", "admin-token", `{"name": " "}`).Code)
	assert.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/categories", "admin-token", `{"name": "Peptides"}`).Code)
}

func TestProductUpdateAndDelete(t *testing.T) {
	ts := newTestServer(t)
	product := &models.Product{ID: uuid.New(), SKU: "BPC-5", Name: "BPC-157", Price: decimal.RequireFromString("25.00"), Active: true}
	ts.catalog.products[product.ID] = product
	path := "/products/" + product.ID.String()

	t.Run("admin only", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPut, path, "customer-token", `{"name": "X"}`).Code)
		assert.Equal(t, http.StatusForbidden, ts.do(http.MethodDelete, path, "customer-token", "").Code)
	})

	t.Run("partial update", func(t *testing.T) {
		rec := ts.do(http.MethodPut, path, "admin-token", `{"name": " BPC-157 10mg ", "price": "27.499", "sku": " "}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		update := ts.catalog.lastUpdate
		require.NotNil(t, update.Name)
		assert.Equal(t, "BPC-157 10mg", *update.Name)
		require.NotNil(t, update.Price)
		assert.Equal(t, "27.5", update.Price.String())
		assert.Nil(t, update.SKU)
		assert.Nil(t, update.Active)
	})

	t.Run("negative price rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPut, path, "admin-token", `{"price": "-1"}`).Code)
	})

	t.Run("delete deactivates", func(t *testing.T) {
		rec := ts.do(http.MethodDelete, path, "admin-token", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message": "product deleted"}`, rec.Body.String())
		assert.False(t, product.Active)
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, path, "", "").Code)
	})

	t.Run("unknown and unparsable ids", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/products/"+uuid.New().String(), "admin-token", "").Code)
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPut, "/products/abc", "admin-token", `{"name": "X"}`).Code)
	})
}

func TestCategoryCRUD(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/categories", "admin-token", `{"name": "Healing", "description": "Recovery peptides"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	path := "/categories/" + created.ID.String()

	rec = ts.do(http.MethodGet, path, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPut, path, "customer-token", `{"name": "X"}`).Code)

	rec = ts.do(http.MethodPut, path, "admin-token", `{"name": " Repair "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Repair", updated.Name)
	assert.Equal(t, "Recovery peptides", updated.Description)

	rec = ts.do(http.MethodDelete, path, "admin-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, ts.do(http.MethodGet, "/categories", "", "").Body.String())

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/categories/nope", "", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/categories/"+uuid.New().String(), "admin-token", "").Code)
}

func TestPeptides(t *testing.T) {
	ts := newTestServer(t)
	relatedID := uuid.New()

	t.Run("create validates required fields", func(t *testing.T) {
		for _, body := range []string{
			`{"description": "d", "usage": {"disclaimer": "Research use only"}}`,
			`{"name": "BPC-157", "usage": {"disclaimer": "Research use only"}}`,
			`{"name": "BPC-157", "description": "d"}`,
			`{"name": "BPC-157", "description": "d", "usage": {"disclaimer": " "}}`,
		} {
			assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/peptides", "admin-token", body).Code, body)
		}
		assert.Empty(t, ts.peptides.peptides)
	})

	var created models.Peptide
	t.Run("create", func(t *testing.T) {
		body := `{"name": " BPC-157 ", "shortName": "BPC", "description": "Body protection compound",
			"usage": {"disclaimer": "Research use only", "instructions": "Reconstitute"},
			"researchInfo": [{"title": "Healing", "content": "Tendon repair"}],
			"relatedProducts": ["` + relatedID.String() + `"]}`
		assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/peptides", "customer-token", body).Code)

		rec := ts.do(http.MethodPost, "/peptides", "admin-token", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, "BPC-157", created.Name)
		assert.True(t, created.Active)
		assert.Equal(t, "Research use only", created.Usage.Disclaimer)
		assert.Equal(t, []uuid.UUID{relatedID}, created.RelatedProducts)
		require.Len(t, created.ResearchInfo, 1)
	})

	path := "/peptides/" + created.ID.String()

	t.Run("get and list", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, path, "", "").Code)

		rec := ts.do(http.MethodGet, "/peptides?search=bpc&includeInactive=true", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bpc", ts.peptides.lastFilter.Search)
		assert.False(t, ts.peptides.lastFilter.IncludeInactive)
		var page peptidesPageResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.EqualValues(t, 1, page.Total)
	})

	t.Run("update leaves omitted fields alone", func(t *testing.T) {
		rec := ts.do(http.MethodPut, path, "admin-token", `{"name": "BPC-157 Arginate", "usage": {"instructions": ""}}`)
		require.Equal(t, http.StatusOK, rec.Code)

		update := ts.peptides.lastUpdate
		require.NotNil(t, update.Name)
		assert.Equal(t, "BPC-157 Arginate", *update.Name)
		assert.Nil(t, update.Disclaimer)
		require.NotNil(t, update.Instructions)
		assert.Empty(t, *update.Instructions)
		assert.Nil(t, update.RelatedProducts)
		assert.Nil(t, update.ResearchInfo)
	})

	t.Run("delete hides from public list", func(t *testing.T) {
		require.Equal(t, http.StatusOK, ts.do(http.MethodDelete, path, "admin-token", "").Code)

		var page peptidesPageResponse
		require.NoError(t, json.Unmarshal(ts.do(http.MethodGet, "/peptides", "", "").Body.Bytes(), &page))
		assert.Empty(t, page.Peptides)

		require.NoError(t, json.Unmarshal(ts.do(http.MethodGet, "/peptides?includeInactive=true", "admin-token", "").Body.Bytes(), &page))
		assert.Len(t, page.Peptides, 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/peptides/"+uuid.New().String(), "", "").Code)
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/peptides/42", "", "").Code)
	})
}

func TestAffiliateRoutes(t *testing.T) {
	ts := newTestServer(t)

	t.Run("validate code", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/affiliates/validate/ABCD1234", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"valid": true, "code": "ABCD1234"}`, rec.Body.String())

		rec = ts.do(http.MethodGet, "/affiliates/validate/NOPE", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "invalid affiliate code", decodeError(t, rec).Message)
	})

	t.Run("apply uses requester", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/affiliates/apply", "customer-token", `{"website": " https://x.io "}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var aff models.Affiliate
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &aff))
		assert.Equal(t, customerUser.ID, aff.UserID)
		assert.Equal(t, "https://x.io", aff.Website)

		assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, "/affiliates/apply", "", `{}`).Code)
	})

	t.Run("me is not shadowed by id route", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/affiliates/me", "customer-token", "").Code)
	})

	t.Run("admin endpoints", func(t *testing.T) {
		id := uuid.New().String()
		assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/affiliates", "customer-token", "").Code)
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/affiliates", "admin-token", "").Code)
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/affiliates/"+id, "admin-token", "").Code)
		assert.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/affiliates/"+id+"/status", "admin-token", `{"status": "approved"}`).Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPut, "/affiliates/"+id+"/commission", "admin-token", `{}`).Code)
		assert.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/affiliates/"+id+"/commission", "admin-token", `{"commission": 15}`).Code)
	})
}

func TestAdminUsers(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/admin/users?role=root", "admin-token", "").Code)

	rec := ts.do(http.MethodGet, "/admin/users?role=admin", "admin-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body usersPageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Users, 1)
	assert.EqualValues(t, 1, body.Total)

	t.Run("update role", func(t *testing.T) {
		path := "/admin/users/" + customerUser.ID.String() + "/role"
		assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPut, path, "customer-token", `{"role": "admin"}`).Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPut, path, "admin-token", `{"role": "root"}`).Code)

		rec := ts.do(http.MethodPut, path, "admin-token", `{"role": "affiliate"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp userRoleResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, models.RoleAffiliate, resp.User.Role)
		assert.Equal(t, "user role updated to affiliate", resp.Message)
		assert.Equal(t, models.RoleAffiliate, ts.users.roles[customerUser.ID])

		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPut, "/admin/users/"+uuid.New().String()+"/role", "admin-token", `{"role": "admin"}`).Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := ts.do(http.MethodDelete, "/admin/users/"+adminUser.ID.String(), "admin-token", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "cannot delete your own account", decodeError(t, rec).Message)

		rec = ts.do(http.MethodDelete, "/admin/users/"+customerUser.ID.String(), "admin-token", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []uuid.UUID{customerUser.ID}, ts.users.deleted)

		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/admin/users/"+customerUser.ID.String(), "admin-token", "").Code)
	})
}

var _ cache.Idempotency = (*memIdempotency)(nil)
