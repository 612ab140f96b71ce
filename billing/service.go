package billing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zllovesuki/adbill/auth"
	resp "github.com/zllovesuki/adbill/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// Runner is what the HTTP surface drives, see Orchestrator
type Runner interface {
	Run(ctx context.Context) *Result
	Status(ctx context.Context) (*Status, error)
}

var _ Runner = &Orchestrator{}

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth   *auth.Auth
	Runner Runner
	Logger *zap.Logger
}

// Service is the billing API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the billing API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.Runner == nil {
		return nil, fmt.Errorf("nil Runner is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) run(w http.ResponseWriter, r *http.Request) {
	// a scheduler hanging up must not abort a half-processed batch
	result := s.Runner.Run(context.WithoutCancel(r.Context()))
	if !result.Success {
		s.Logger.Error("Billing run failed",
			zap.String("Error", result.Error),
		)
		resp.WriteResponseWithStatus(w, r, http.StatusInternalServerError, result)
		return
	}
	resp.WriteResponse(w, r, result)
}

func (s *Service) status(w http.ResponseWriter, r *http.Request) {
	status, err := s.Runner.Status(r.Context())
	if err != nil {
		s.Logger.Error("Unable to count subscriptions",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrStatusUnavailable())
		return
	}
	resp.WriteResponse(w, r, status)
}

// Router will return the routes under billing API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.SchedulerSecret())
		r.Post("/run", s.run)
		r.Get("/run", s.run)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Use(s.Auth.ClaimCheck())
		r.Get("/status", s.status)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		resp.WriteError(w, r, resp.ErrMethodNotAllowed())
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		resp.WriteError(w, r, resp.ErrNotFound())
	})

	return r
}
