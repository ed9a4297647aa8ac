package payment

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/payflow/internal/domain/order"
	"github.com/xenking/payflow/internal/gateway"
)

// --- Mock implementations ---

type mockPaymentRepo struct {
	mu              sync.Mutex
	byID            map[string]*Payment
	lastOrderStatus order.Status
	updateErr       error
}

func newMockPaymentRepo(payments ...*Payment) *mockPaymentRepo {
	byID := make(map[string]*Payment, len(payments))
	for _, p := range payments {
		byID[p.ID] = p
	}
	return &mockPaymentRepo{byID: byID}
}

func (m *mockPaymentRepo) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = p
	return nil
}

func (m *mockPaymentRepo) GetByID(_ context.Context, id string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPaymentRepo) GetByReference(_ context.Context, reference string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Reference == reference {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPaymentRepo) GetByExternalID(_ context.Context, externalID string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.ExternalID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPaymentRepo) List(_ context.Context) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockPaymentRepo) ListByOrder(_ context.Context, orderID string) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for _, p := range m.byID {
		if p.OrderID == orderID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockPaymentRepo) ListByUser(_ context.Context, userID string) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for _, p := range m.byID {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockPaymentRepo) Update(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockPaymentRepo) UpdateWithOrderStatus(_ context.Context, p *Payment, orderStatus order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *p
	m.byID[p.ID] = &cp
	m.lastOrderStatus = orderStatus
	return nil
}

type mockOrderRepo struct {
	byID map[string]*order.Order
}

func newMockOrderRepo(orders ...*order.Order) *mockOrderRepo {
	byID := make(map[string]*order.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	return &mockOrderRepo{byID: byID}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, _ string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (m *mockOrderRepo) Update(_ context.Context, o *order.Order) error {
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status order.Status) error {
	o, ok := m.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]order.Order, error) { return nil, nil }

func (m *mockOrderRepo) ListByUser(_ context.Context, _ string) ([]order.Order, error) {
	return nil, nil
}

// mockStrategy counts calls and optionally fails specific operations.
type mockStrategy struct {
	mu            sync.Mutex
	checkoutErr   error
	authorizeErr  error
	captureErr    error
	cancelErr     error
	refundErr     error
	verifyOK      bool
	verifyErr     error
	captureCalls  int
	refundCalls   int
	lastCapture   gateway.CaptureRequest
	lastRefund    gateway.RefundRequest
	lastCheckout  gateway.CheckoutRequest
	statusFromAPI string
}

func (m *mockStrategy) CreateCheckout(_ context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkoutErr != nil {
		return nil, m.checkoutErr
	}
	m.lastCheckout = req
	return &gateway.Checkout{URL: "https://pay.example.com/c1", ExternalID: "ext-" + req.Reference}, nil
}

func (m *mockStrategy) Authorize(_ context.Context, _ string) error {
	return m.authorizeErr
}

func (m *mockStrategy) Capture(_ context.Context, req gateway.CaptureRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureCalls++
	m.lastCapture = req
	return m.captureErr
}

func (m *mockStrategy) Cancel(_ context.Context, _ string) error {
	return m.cancelErr
}

func (m *mockStrategy) Refund(_ context.Context, req gateway.RefundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refundCalls++
	m.lastRefund = req
	return m.refundErr
}

func (m *mockStrategy) GetStatus(_ context.Context, _ string) (string, error) {
	return m.statusFromAPI, nil
}

func (m *mockStrategy) VerifyWebhook(_ context.Context, _ string) (bool, error) {
	return m.verifyOK, m.verifyErr
}

// --- Helpers ---

func newTestService(payments *mockPaymentRepo, orders *mockOrderRepo, strategy gateway.Strategy) *Service {
	gateways := gateway.NewRegistry()
	gateways.Register("tamara", strategy)
	return NewService(payments, orders, gateways)
}

func testOrder(id, userID string) *order.Order {
	return &order.Order{
		ID:       id,
		Number:   "ORD-1-001",
		UserID:   userID,
		Status:   order.StatusPending,
		Currency: "SAR",
		Items: []order.Item{{
			ID:        "i1",
			Name:      "Widget",
			SKU:       "p1",
			Quantity:  1,
			UnitPrice: decimal.RequireFromString("100.00"),
			Total:     decimal.RequireFromString("100.00"),
		}},
		Total: decimal.RequireFromString("100.00"),
	}
}

func testPayment(id string, status Status) *Payment {
	return &Payment{
		ID:         id,
		Reference:  "PAY-1-001",
		OrderID:    "o1",
		UserID:     "u1",
		Provider:   "tamara",
		Status:     status,
		Amount:     decimal.RequireFromString("100.00"),
		Currency:   "SAR",
		ExternalID: "ext-1",
		Version:    1,
	}
}

// --- Tests ---

func TestCreate_InvalidAmount(t *testing.T) {
	svc := newTestService(newMockPaymentRepo(), newMockOrderRepo(), &mockStrategy{})

	_, err := svc.Create(context.Background(), "u1", CreateRequest{
		OrderID:  "o1",
		Provider: "tamara",
		Amount:   decimal.Zero,
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCreate_OrderNotFound(t *testing.T) {
	svc := newTestService(newMockPaymentRepo(), newMockOrderRepo(), &mockStrategy{})

	_, err := svc.Create(context.Background(), "u1", CreateRequest{
		OrderID:  "missing",
		Provider: "tamara",
		Amount:   decimal.RequireFromString("100.00"),
	})
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestCreate_NotOrderOwner(t *testing.T) {
	orders := newMockOrderRepo(testOrder("o1", "owner"))
	svc := newTestService(newMockPaymentRepo(), orders, &mockStrategy{})

	_, err := svc.Create(context.Background(), "intruder", CreateRequest{
		OrderID:  "o1",
		Provider: "tamara",
		Amount:   decimal.RequireFromString("100.00"),
	})
	require.ErrorIs(t, err, ErrNotOrderOwner)
}

func TestCreate_OrderAlreadyPaid(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusCaptured))
	orders := newMockOrderRepo(testOrder("o1", "u1"))
	svc := newTestService(payments, orders, &mockStrategy{})

	_, err := svc.Create(context.Background(), "u1", CreateRequest{
		OrderID:  "o1",
		Provider: "tamara",
		Amount:   decimal.RequireFromString("100.00"),
	})
	require.ErrorIs(t, err, ErrOrderAlreadyPaid)
}

func TestCreate_FailedPaymentDoesNotBlockRetry(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusFailed))
	orders := newMockOrderRepo(testOrder("o1", "u1"))
	svc := newTestService(payments, orders, &mockStrategy{})

	p, err := svc.Create(context.Background(), "u1", CreateRequest{
		OrderID:  "o1",
		Provider: "tamara",
		Amount:   decimal.RequireFromString("100.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
}

func TestCreate_Success(t *testing.T) {
	payments := newMockPaymentRepo()
	orders := newMockOrderRepo(testOrder("o1", "u1"))
	strategy := &mockStrategy{}
	svc := newTestService(payments, orders, strategy)

	p, err := svc.Create(context.Background(), "u1", CreateRequest{
		OrderID:  "o1",
		Provider: "TAMARA",
		Amount:   decimal.RequireFromString("100.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "tamara", p.Provider)
	assert.Equal(t, "SAR", p.Currency)
	assert.Equal(t, "https://pay.example.com/c1", p.CheckoutURL)
	assert.NotEmpty(t, p.ExternalID)
	assert.Regexp(t, `^PAY-\d+-\d{3}$`, p.Reference)
	assert.Equal(t, order.StatusAwaitingPayment, payments.lastOrderStatus)
	assert.Equal(t, "ORD-1-001", strategy.lastCheckout.OrderNumber)
}

func TestCreate_GatewayFailureMarksFailed(t *testing.T) {
	payments := newMockPaymentRepo()
	orders := newMockOrderRepo(testOrder("o1", "u1"))
	strategy := &mockStrategy{checkoutErr: gateway.NewError("tamara", errors.New("boom"))}
	svc := newTestService(payments, orders, strategy)

	_, err := svc.Create(context.Background(), "u1", CreateRequest{
		OrderID:  "o1",
		Provider: "tamara",
		Amount:   decimal.RequireFromString("100.00"),
	})

	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)

	stored, listErr := payments.ListByOrder(context.Background(), "o1")
	require.NoError(t, listErr)
	require.Len(t, stored, 1)
	assert.Equal(t, StatusFailed, stored[0].Status)
	assert.NotEmpty(t, stored[0].ErrorMessage)
	// Order status was never advanced.
	assert.Equal(t, order.Status(""), payments.lastOrderStatus)
}

func TestCreate_UnsupportedProvider(t *testing.T) {
	payments := newMockPaymentRepo()
	orders := newMockOrderRepo(testOrder("o1", "u1"))
	svc := newTestService(payments, orders, &mockStrategy{})

	_, err := svc.Create(context.Background(), "u1", CreateRequest{
		OrderID:  "o1",
		Provider: "stripe",
		Amount:   decimal.RequireFromString("100.00"),
	})

	var unsupported *gateway.UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "stripe", unsupported.Provider)
}

func TestAuthorize_Success(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusPending))
	svc := newTestService(payments, newMockOrderRepo(), &mockStrategy{})

	p, err := svc.Authorize(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, StatusAuthorized, p.Status)
	require.NotNil(t, p.AuthorizedAt)
	assert.Equal(t, order.StatusPaymentAuthorized, payments.lastOrderStatus)
}

func TestAuthorize_InvalidState(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusCaptured))
	svc := newTestService(payments, newMockOrderRepo(), &mockStrategy{})

	_, err := svc.Authorize(context.Background(), "p1")

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "authorize", stateErr.Op)
}

func TestAuthorize_GatewayFailureMarksFailed(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusPending))
	strategy := &mockStrategy{authorizeErr: gateway.NewError("tamara", errors.New("declined"))}
	svc := newTestService(payments, newMockOrderRepo(), strategy)

	_, err := svc.Authorize(context.Background(), "p1")
	require.Error(t, err)

	stored, getErr := payments.GetByID(context.Background(), "p1")
	require.NoError(t, getErr)
	assert.Equal(t, StatusFailed, stored.Status)
}

func TestCapture_FullAmountByDefault(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusAuthorized))
	strategy := &mockStrategy{}
	svc := newTestService(payments, newMockOrderRepo(), strategy)

	p, err := svc.Capture(context.Background(), "p1", nil)

	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, p.Status)
	require.NotNil(t, p.CapturedAt)
	assert.Equal(t, order.StatusProcessing, payments.lastOrderStatus)
	require.NotNil(t, strategy.lastCapture.Amount)
	assert.True(t, decimal.RequireFromString("100.00").Equal(*strategy.lastCapture.Amount))
}

func TestCapture_FromPending(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusPending))
	svc := newTestService(payments, newMockOrderRepo(), &mockStrategy{})

	p, err := svc.Capture(context.Background(), "p1", nil)

	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, p.Status)
}

func TestCapture_AmountExceedsPayment(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusAuthorized))
	svc := newTestService(payments, newMockOrderRepo(), &mockStrategy{})

	amount := decimal.RequireFromString("150.00")
	_, err := svc.Capture(context.Background(), "p1", &amount)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCapture_InvalidState(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusRefunded))
	svc := newTestService(payments, newMockOrderRepo(), &mockStrategy{})

	_, err := svc.Capture(context.Background(), "p1", nil)

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestCancel_Success(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusAuthorized))
	svc := newTestService(payments, newMockOrderRepo(), &mockStrategy{})

	p, err := svc.Cancel(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, p.Status)
	assert.Equal(t, order.StatusCancelled, payments.lastOrderStatus)
}

func TestCancel_CapturedRejected(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusCaptured))
	svc := newTestService(payments, newMockOrderRepo(), &mockStrategy{})

	_, err := svc.Cancel(context.Background(), "p1")

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "cancel", stateErr.Op)
}

func TestCancel_GatewayFailureDoesNotMarkFailed(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusPending))
	strategy := &mockStrategy{cancelErr: gateway.NewError("tamara", errors.New("boom"))}
	svc := newTestService(payments, newMockOrderRepo(), strategy)

	_, err := svc.Cancel(context.Background(), "p1")
	require.Error(t, err)

	stored, getErr := payments.GetByID(context.Background(), "p1")
	require.NoError(t, getErr)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestRefund_Full(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusCaptured))
	strategy := &mockStrategy{}
	svc := newTestService(payments, newMockOrderRepo(), strategy)

	p, err := svc.Refund(context.Background(), "p1", nil, "requested by customer")

	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, p.Status)
	require.NotNil(t, p.RefundedAt)
	assert.Equal(t, order.StatusRefunded, payments.lastOrderStatus)
	assert.Equal(t, "requested by customer", strategy.lastRefund.Reason)
	require.NotNil(t, strategy.lastRefund.Amount)
	assert.True(t, decimal.RequireFromString("100.00").Equal(*strategy.lastRefund.Amount))
}

func TestRefund_Partial(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusCaptured))
	svc := newTestService(payments, newMockOrderRepo(), &mockStrategy{})

	amount := decimal.RequireFromString("40.00")
	p, err := svc.Refund(context.Background(), "p1", &amount, "")

	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyRefunded, p.Status)
	assert.Equal(t, order.StatusPartiallyRefunded, payments.lastOrderStatus)
}

func TestRefund_FullAmountExplicit(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusCaptured))
	svc := newTestService(payments, newMockOrderRepo(), &mockStrategy{})

	amount := decimal.RequireFromString("100.00")
	p, err := svc.Refund(context.Background(), "p1", &amount, "")

	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, p.Status)
}

func TestRefund_NotCaptured(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusAuthorized))
	svc := newTestService(payments, newMockOrderRepo(), &mockStrategy{})

	_, err := svc.Refund(context.Background(), "p1", nil, "")

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "refund", stateErr.Op)
}

func TestRefund_AmountExceedsPayment(t *testing.T) {
	payments := newMockPaymentRepo(testPayment("p1", StatusCaptured))
	svc := newTestService(payments, newMockOrderRepo(), &mockStrategy{})

	amount := decimal.RequireFromString("200.00")
	_, err := svc.Refund(context.Background(), "p1", &amount, "")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestProviders(t *testing.T) {
	svc := newTestService(newMockPaymentRepo(), newMockOrderRepo(), &mockStrategy{})

	assert.Equal(t, []string{"tamara"}, svc.Providers())
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var (
		mu      sync.Mutex
		current int
		max     int
		wg      sync.WaitGroup
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("p1")
			defer unlock()

			mu.Lock()
			current++
			if current > max {
				max = current
			}
			mu.Unlock()

			mu.Lock()
			current--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, max)
}
