package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategy struct{}

func (stubStrategy) CreateCheckout(context.Context, CheckoutRequest) (*Checkout, error) {
	return &Checkout{}, nil
}
func (stubStrategy) Authorize(context.Context, string) error        { return nil }
func (stubStrategy) Capture(context.Context, CaptureRequest) error  { return nil }
func (stubStrategy) Cancel(context.Context, string) error           { return nil }
func (stubStrategy) Refund(context.Context, RefundRequest) error    { return nil }
func (stubStrategy) GetStatus(context.Context, string) (string, error) {
	return "", nil
}
func (stubStrategy) VerifyWebhook(context.Context, string) (bool, error) {
	return true, nil
}

func TestRegistry_GetIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register("Tamara", stubStrategy{})

	s, err := r.Get("TAMARA")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("stripe")

	var unsupported *UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "stripe", unsupported.Provider)
}

func TestRegistry_ProvidersSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("tamara", stubStrategy{})
	r.Register("Checkout", stubStrategy{})

	assert.Equal(t, []string{"checkout", "tamara"}, r.Providers())
}
