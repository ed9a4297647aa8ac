package order

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	byID      map[string]*Order
	lastOrder *Order
	createErr error
}

func newMockOrderRepo(orders ...*Order) *mockOrderRepo {
	byID := make(map[string]*Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	return &mockOrderRepo{byID: byID}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.lastOrder = o
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, number string) (*Order, error) {
	for _, o := range m.byID {
		if o.Number == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	m.lastOrder = o
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status Status) error {
	o, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]Order, error) {
	var out []Order
	for _, o := range m.byID {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

type mockLivePayments struct {
	live bool
	err  error
}

func (m *mockLivePayments) HasLivePayment(_ context.Context, _ string) (bool, error) {
	return m.live, m.err
}

// --- Helpers ---

func testItem(sku string, quantity int, price string) CreateItem {
	return CreateItem{
		Name:      "Item " + sku,
		SKU:       sku,
		Quantity:  quantity,
		UnitPrice: decimal.RequireFromString(price),
	}
}

// --- Tests ---

func TestCreate_EmptyItems(t *testing.T) {
	svc := NewService(newMockOrderRepo(), &mockLivePayments{})

	_, err := svc.Create(context.Background(), "u1", CreateRequest{})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreate_InvalidQuantity(t *testing.T) {
	svc := NewService(newMockOrderRepo(), &mockLivePayments{})

	_, err := svc.Create(context.Background(), "u1", CreateRequest{
		Items: []CreateItem{testItem("p1", 0, "10.00")},
	})

	var itemErr *InvalidItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, "p1", itemErr.SKU)
}

func TestCreate_NonPositivePrice(t *testing.T) {
	svc := NewService(newMockOrderRepo(), &mockLivePayments{})

	_, err := svc.Create(context.Background(), "u1", CreateRequest{
		Items: []CreateItem{testItem("p1", 1, "0")},
	})

	var itemErr *InvalidItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, "p1", itemErr.SKU)
}

func TestCreate_ComputesTotals(t *testing.T) {
	repo := newMockOrderRepo()
	svc := NewService(repo, &mockLivePayments{})

	o, err := svc.Create(context.Background(), "u1", CreateRequest{
		Items: []CreateItem{
			{
				Name:           "Widget",
				SKU:            "p1",
				Quantity:       2,
				UnitPrice:      decimal.RequireFromString("100.00"),
				DiscountAmount: decimal.RequireFromString("10.00"),
			},
		},
	})

	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.True(t, decimal.RequireFromString("190.00").Equal(o.Items[0].Total))
	assert.True(t, decimal.RequireFromString("190.00").Equal(o.Subtotal))
	assert.True(t, decimal.RequireFromString("190.00").Equal(o.Total))
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "SAR", o.Currency)
	assert.NotEmpty(t, o.Number)
	assert.Same(t, repo.lastOrder, o)
}

func TestCreate_OrderLevelAdjustments(t *testing.T) {
	svc := NewService(newMockOrderRepo(), &mockLivePayments{})

	o, err := svc.Create(context.Background(), "u1", CreateRequest{
		Items:    []CreateItem{testItem("p1", 1, "100.00")},
		Discount: decimal.RequireFromString("20.00"),
		Tax:      decimal.RequireFromString("15.00"),
		Shipping: decimal.RequireFromString("10.00"),
		Currency: "AED",
	})

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.00").Equal(o.Subtotal))
	assert.True(t, decimal.RequireFromString("105.00").Equal(o.Total))
	assert.Equal(t, "AED", o.Currency)
}

func TestCreate_NegativeTotal(t *testing.T) {
	svc := NewService(newMockOrderRepo(), &mockLivePayments{})

	_, err := svc.Create(context.Background(), "u1", CreateRequest{
		Items:    []CreateItem{testItem("p1", 1, "10.00")},
		Discount: decimal.RequireFromString("50.00"),
	})
	require.ErrorIs(t, err, ErrNegativeTotal)
}

func TestCreate_NumberCollision(t *testing.T) {
	repo := newMockOrderRepo()
	repo.createErr = ErrNumberCollision
	svc := NewService(repo, &mockLivePayments{})

	_, err := svc.Create(context.Background(), "u1", CreateRequest{
		Items: []CreateItem{testItem("p1", 1, "10.00")},
	})
	require.ErrorIs(t, err, ErrNumberCollision)
}

func TestUpdate_ReplacesItemsAndRecomputes(t *testing.T) {
	repo := newMockOrderRepo(&Order{
		ID:       "o1",
		UserID:   "u1",
		Status:   StatusPending,
		Items:    []Item{{SKU: "old", Quantity: 1, UnitPrice: decimal.RequireFromString("5.00"), Total: decimal.RequireFromString("5.00")}},
		Subtotal: decimal.RequireFromString("5.00"),
		Total:    decimal.RequireFromString("5.00"),
	})
	svc := NewService(repo, &mockLivePayments{})

	o, err := svc.Update(context.Background(), "o1", UpdateRequest{
		Items: []CreateItem{testItem("new", 3, "10.00")},
	})

	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "new", o.Items[0].SKU)
	assert.True(t, decimal.RequireFromString("30.00").Equal(o.Total))
}

func TestUpdate_NilItemsKeepsExisting(t *testing.T) {
	repo := newMockOrderRepo(&Order{
		ID:       "o1",
		UserID:   "u1",
		Status:   StatusPending,
		Items:    []Item{{SKU: "keep", Quantity: 1, UnitPrice: decimal.RequireFromString("5.00"), Total: decimal.RequireFromString("5.00")}},
		Subtotal: decimal.RequireFromString("5.00"),
		Total:    decimal.RequireFromString("5.00"),
	})
	svc := NewService(repo, &mockLivePayments{})

	notes := "updated notes"
	o, err := svc.Update(context.Background(), "o1", UpdateRequest{Notes: &notes})

	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "keep", o.Items[0].SKU)
	assert.Equal(t, "updated notes", o.Notes)
}

func TestUpdate_TerminalStatus(t *testing.T) {
	repo := newMockOrderRepo(&Order{ID: "o1", Status: StatusCompleted})
	svc := NewService(repo, &mockLivePayments{})

	_, err := svc.Update(context.Background(), "o1", UpdateRequest{})
	require.ErrorIs(t, err, ErrTerminalStatus)
}

func TestUpdate_NotFound(t *testing.T) {
	svc := NewService(newMockOrderRepo(), &mockLivePayments{})

	_, err := svc.Update(context.Background(), "missing", UpdateRequest{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_TerminalGuard(t *testing.T) {
	repo := newMockOrderRepo(&Order{ID: "o1", Status: StatusCancelled})
	svc := NewService(repo, &mockLivePayments{})

	err := svc.UpdateStatus(context.Background(), "o1", StatusProcessing)
	require.ErrorIs(t, err, ErrTerminalStatus)
}

func TestUpdateStatus_SameTerminalStatusIsIdempotent(t *testing.T) {
	repo := newMockOrderRepo(&Order{ID: "o1", Status: StatusCancelled})
	svc := NewService(repo, &mockLivePayments{})

	require.NoError(t, svc.UpdateStatus(context.Background(), "o1", StatusCancelled))
}

func TestDelete_WithLivePayment(t *testing.T) {
	repo := newMockOrderRepo(&Order{ID: "o1", Status: StatusAwaitingPayment})
	svc := NewService(repo, &mockLivePayments{live: true})

	err := svc.Delete(context.Background(), "o1")
	require.ErrorIs(t, err, ErrHasLivePayment)
}

func TestDelete_WithoutLivePayment(t *testing.T) {
	repo := newMockOrderRepo(&Order{ID: "o1", Status: StatusPending})
	svc := NewService(repo, &mockLivePayments{})

	require.NoError(t, svc.Delete(context.Background(), "o1"))

	_, err := svc.FindByID(context.Background(), "o1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateNumber_Format(t *testing.T) {
	svc := NewService(newMockOrderRepo(), &mockLivePayments{})

	number := svc.generateNumber()
	assert.Regexp(t, `^ORD-\d+-\d{3}$`, number)
}
