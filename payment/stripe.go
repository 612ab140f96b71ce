package payment

import (
	"context"
	"fmt"
	"strings"

	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
)

// currencies without a minor unit, see https://stripe.com/docs/currencies#zero-decimal
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true, "krw": true, "mga": true,
	"pyg": true, "rwf": true, "ugx": true, "vnd": true, "vuv": true, "xaf": true, "xof": true, "xpf": true,
}

type StripeAuthorizerOptions struct {
	StripeClient *client.API
	Logger       *zap.Logger
}

// StripeAuthorizer charges saved cards off-session through Stripe PaymentIntents
type StripeAuthorizer struct {
	StripeAuthorizerOptions
}

var _ Authorizer = &StripeAuthorizer{}

func NewStripeAuthorizer(option StripeAuthorizerOptions) (*StripeAuthorizer, error) {
	if option.StripeClient == nil {
		return nil, fmt.Errorf("nil StripeClient is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &StripeAuthorizer{
		StripeAuthorizerOptions: option,
	}, nil
}

func minorUnits(req ChargeRequest) int64 {
	if zeroDecimalCurrencies[strings.ToLower(req.Currency)] {
		return req.Amount.Round(0).IntPart()
	}
	return req.Amount.Shift(2).Round(0).IntPart()
}

// Charge creates and confirms a PaymentIntent against req.MethodID
func (s *StripeAuthorizer) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	amount := minorUnits(req)
	if amount < 0 {
		return Result{}, fmt.Errorf("negative amount %s is invalid", req.Amount)
	}
	if amount == 0 {
		// nothing to collect, Stripe rejects zero-amount intents
		return Result{Success: true}, nil
	}

	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(req.UserID),
		PaymentMethod: stripe.String(req.MethodID),
		Description:   stripe.String(req.Description),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	if len(req.IdempotencyKey) > 0 {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	pi, err := s.StripeClient.PaymentIntents.New(params)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.Type == stripe.ErrorTypeCard {
			s.Logger.Info("Card was declined",
				zap.String("PaymentMethodID", req.MethodID),
				zap.String("Code", string(stripeErr.Code)),
			)
			return Result{
				Success: false,
				Error:   stripeErr.Msg,
			}, nil
		}
		return Result{}, extErrors.Wrap(err, "Cannot create PaymentIntent on Stripe")
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return Result{
			Success:   false,
			Reference: pi.ID,
			Error:     fmt.Sprintf("payment intent is %s", pi.Status),
		}, nil
	}

	return Result{
		Success:   true,
		Reference: pi.ID,
	}, nil
}
