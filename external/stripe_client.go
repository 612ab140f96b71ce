package external

import (
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

func NewStripeClient(key string) *client.API {
	sc := &client.API{}
	sc.Init(key, nil)
	return sc
}

// NewStripeClientWithURL points the API backend at url, e.g. stripe-mock or a test server
func NewStripeClientWithURL(key, url string) *client.API {
	sc := &client.API{}
	sc.Init(key, &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(url),
			MaxNetworkRetries: stripe.Int64(0),
		}),
	})
	return sc
}
