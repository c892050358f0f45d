package casework

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ValidationError reports unusable input.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// CreateClientRequest is the input for a new client.
type CreateClientRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	CreditScore *int   `json:"credit_score,omitempty"`
}

// CreateDisputeRequest is the input for a new dispute.
type CreateDisputeRequest struct {
	ClientID      string   `json:"client_id"`
	CreditorName  string   `json:"creditor_name"`
	AccountNumber string   `json:"account_number"`
	Reason        string   `json:"dispute_reason"`
	Amount        *float64 `json:"amount,omitempty"`
	Description   string   `json:"description,omitempty"`
}

type Service struct {
	store     *Store
	predictor Predictor
	clock     clockwork.Clock
	logger    *zap.Logger
}

func NewService(store *Store, predictor Predictor, clock clockwork.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: store, predictor: predictor, clock: clock, logger: logger}
}

// CreateClient opens a file for a new client at the first enforcement stage.
func (s *Service) CreateClient(ctx context.Context, req CreateClientRequest) (*Client, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FirstName == "" || req.LastName == "" {
		return nil, &ValidationError{"first_name and last_name are required"}
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, &ValidationError{"a valid email is required"}
	}
	if req.CreditScore != nil && (*req.CreditScore < 300 || *req.CreditScore > 850) {
		return nil, &ValidationError{"credit_score must be between 300 and 850"}
	}

	now := s.clock.Now().UTC()
	c := &Client{
		ID:               uuid.NewString(),
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Phone:            strings.TrimSpace(req.Phone),
		CreditScore:      req.CreditScore,
		Status:           ClientActive,
		EnforcementStage: StageLabel(stages[0]),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.InsertClient(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("client created", zap.String("client_id", c.ID))
	return c, nil
}

func (s *Service) GetClient(ctx context.Context, id string) (*Client, error) {
	return s.store.GetClient(ctx, id)
}

func (s *Service) ListClients(ctx context.Context) ([]Client, error) {
	return s.store.ListClients(ctx)
}

// CreateDispute files a dispute for an existing client and attaches the
// predicted success probability. A failed prediction leaves it unset.
func (s *Service) CreateDispute(ctx context.Context, req CreateDisputeRequest) (*Dispute, error) {
	if strings.TrimSpace(req.ClientID) == "" {
		return nil, &ValidationError{"client_id is required"}
	}
	if strings.TrimSpace(req.CreditorName) == "" || strings.TrimSpace(req.AccountNumber) == "" || strings.TrimSpace(req.Reason) == "" {
		return nil, &ValidationError{"creditor_name, account_number and dispute_reason are required"}
	}
	if req.Amount != nil && *req.Amount < 0 {
		return nil, &ValidationError{"amount must not be negative"}
	}
	if _, err := s.store.GetClient(ctx, req.ClientID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	d := &Dispute{
		ID:            uuid.NewString(),
		ClientID:      req.ClientID,
		CreditorName:  strings.TrimSpace(req.CreditorName),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		Reason:        strings.TrimSpace(req.Reason),
		Description:   strings.TrimSpace(req.Description),
		Amount:        req.Amount,
		Status:        DisputePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if s.predictor != nil {
		p, err := s.predictor.Predict(ctx, d)
		if err != nil {
			s.logger.Warn("dispute prediction failed", zap.String("client_id", d.ClientID), zap.Error(err))
		} else {
			d.SuccessProbability = &p
		}
	}
	if err := s.store.InsertDispute(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("dispute created", zap.String("dispute_id", d.ID), zap.String("client_id", d.ClientID))
	return d, nil
}

func (s *Service) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	return s.store.GetDispute(ctx, id)
}

func (s *Service) ListDisputes(ctx context.Context) ([]Dispute, error) {
	return s.store.ListDisputes(ctx, "")
}

// ListClientDisputes returns ErrClientNotFound for an unknown client rather
// than an empty list.
func (s *Service) ListClientDisputes(ctx context.Context, clientID string) ([]Dispute, error) {
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	disputes, err := s.store.ListDisputes(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client disputes: %w", err)
	}
	return disputes, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}
