package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/ers-reimbursement/internal/application/port"
	"github.com/garyjia/ers-reimbursement/internal/domain/entity"
	"github.com/garyjia/ers-reimbursement/internal/domain/workflow"
	"github.com/garyjia/ers-reimbursement/pkg/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// receiptExtensions lists accepted receipt file types
var receiptExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".pdf":  true,
}

// SubmitRequest is an employee's new reimbursement request
type SubmitRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
}

// ReimbursementService orchestrates the reimbursement store
type ReimbursementService interface {
	Submit(ctx context.Context, author string, req SubmitRequest) (*entity.Reimbursement, error)
	Get(ctx context.Context, id int64) (*entity.Reimbursement, error)
	List(ctx context.Context) ([]*entity.Reimbursement, error)
	ListForAuthor(ctx context.Context, username string) ([]*entity.Reimbursement, error)
	Filter(ctx context.Context, status, reimbType string) ([]*entity.Reimbursement, error)
	FindBy(ctx context.Context, key entity.LookupKey, value string) (*entity.Reimbursement, error)
	Update(ctx context.Context, r *entity.Reimbursement) (*entity.Reimbursement, error)
	Resolve(ctx context.Context, id int64, decision, resolver string) (*entity.Reimbursement, error)
	Delete(ctx context.Context, id int64) error
	AttachReceipt(ctx context.Context, id int64, filename string, content io.Reader) (*entity.Reimbursement, error)
	OpenReceipt(ctx context.Context, id int64) ([]byte, string, error)
}

type reimbursementServiceImpl struct {
	repo     port.ReimbursementRepository
	users    port.UserRepository
	receipts port.ReceiptStorage
	logger   Logger

	now   func() time.Time
	newID func() string
}

// NewReimbursementService creates a new ReimbursementService
func NewReimbursementService(
	repo port.ReimbursementRepository,
	users port.UserRepository,
	receipts port.ReceiptStorage,
	logger Logger,
) ReimbursementService {
	return &reimbursementServiceImpl{
		repo:     repo,
		users:    users,
		receipts: receipts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Submit validates and stores a new pending request authored by author
func (s *reimbursementServiceImpl) Submit(ctx context.Context, author string, req SubmitRequest) (*entity.Reimbursement, error) {
	if err := validateSubmit(author, req); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, &entity.Reimbursement{
		Amount:      req.Amount,
		SubmittedAt: s.now(),
		Description: utils.SanitizeString(strings.TrimSpace(req.Description)),
		Author:      author,
		Type:        req.Type,
	})
	if err != nil {
		s.logger.Error("Failed to submit reimbursement", "author", author, "error", err)
		return nil, err
	}

	s.logger.Info("Reimbursement submitted", "id", created.ID, "author", author, "amount", created.Amount.String())
	return created, nil
}

// Get returns a request or entity.ErrNotFound
func (s *reimbursementServiceImpl) Get(ctx context.Context, id int64) (*entity.Reimbursement, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("reimbursement %d: %w", id, entity.ErrNotFound)
	}
	return r, nil
}

// List returns every request
func (s *reimbursementServiceImpl) List(ctx context.Context) ([]*entity.Reimbursement, error) {
	return s.repo.ListAll(ctx)
}

// ListForAuthor resolves username to its internal id and lists that user's requests
func (s *reimbursementServiceImpl) ListForAuthor(ctx context.Context, username string) ([]*entity.Reimbursement, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &entity.UnresolvedNameError{Kind: "user", Name: username}
	}
	return s.repo.ListByAuthorID(ctx, user.ID)
}

// Filter delegates to the store; with neither filter the result is empty
func (s *reimbursementServiceImpl) Filter(ctx context.Context, status, reimbType string) ([]*entity.Reimbursement, error) {
	return s.repo.ListByFilter(ctx, status, reimbType)
}

// FindBy returns the first request matching key, or entity.ErrNotFound
func (s *reimbursementServiceImpl) FindBy(ctx context.Context, key entity.LookupKey, value string) (*entity.Reimbursement, error) {
	r, err := s.repo.GetByUniqueKey(ctx, key, value)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("reimbursement with %s %q: %w", key, value, entity.ErrNotFound)
	}
	return r, nil
}

// Update overwrites a request. No lifecycle rules apply; use Resolve for decisions.
// The submitted time is kept from creation; the stored record is returned.
func (s *reimbursementServiceImpl) Update(ctx context.Context, r *entity.Reimbursement) (*entity.Reimbursement, error) {
	if err := validateUpdate(r); err != nil {
		return nil, err
	}
	r.Description = utils.SanitizeString(strings.TrimSpace(r.Description))

	existed, err := s.repo.Update(ctx, r)
	if err != nil {
		s.logger.Error("Failed to update reimbursement", "id", r.ID, "error", err)
		return nil, err
	}
	if !existed {
		return nil, fmt.Errorf("reimbursement %d: %w", r.ID, entity.ErrNotFound)
	}

	s.logger.Info("Reimbursement updated", "id", r.ID, "status", r.Status)
	return s.Get(ctx, r.ID)
}

// Resolve approves or denies a pending request on behalf of resolver
func (s *reimbursementServiceImpl) Resolve(ctx context.Context, id int64, decision, resolver string) (*entity.Reimbursement, error) {
	trigger, err := workflow.ParseDecision(decision)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := workflow.Resolve(ctx, workflow.State(current.Status), trigger, resolver)
	if err != nil {
		s.logger.Info("Resolution rejected",
			"id", id, "status", current.Status, "decision", trigger.String(), "error", err)
		return nil, fmt.Errorf("cannot %s reimbursement %d: %w", strings.ToLower(trigger.String()), id, err)
	}

	resolved := current.Clone()
	resolvedAt := s.now()
	resolved.Status = next.String()
	resolved.Resolver = &resolver
	resolved.ResolvedAt = &resolvedAt

	matched, err := s.repo.Transition(ctx, resolved, current.Status)
	if err != nil {
		s.logger.Error("Failed to record resolution", "id", id, "error", err)
		return nil, err
	}
	if !matched {
		err := s.lostRace(ctx, id, "cannot "+strings.ToLower(trigger.String()))
		s.logger.Info("Resolution rejected", "id", id, "decision", trigger.String(), "error", err)
		return nil, err
	}

	s.logger.Info("Reimbursement resolved", "id", id, "status", resolved.Status, "resolver", resolver)
	return resolved, nil
}

// Delete removes a request and, best effort, its receipt file
func (s *reimbursementServiceImpl) Delete(ctx context.Context, id int64) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	existed, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to delete reimbursement", "id", id, "error", err)
		return err
	}
	if !existed {
		return fmt.Errorf("reimbursement %d: %w", id, entity.ErrNotFound)
	}

	if current != nil && current.ReceiptRef != nil {
		s.removeReceipt(ctx, *current.ReceiptRef)
	}

	s.logger.Info("Reimbursement deleted", "id", id)
	return nil
}

// AttachReceipt stores a receipt file for a pending request, replacing any previous one
func (s *reimbursementServiceImpl) AttachReceipt(ctx context.Context, id int64, filename string, content io.Reader) (*entity.Reimbursement, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !receiptExtensions[ext] {
		return nil, fmt.Errorf("%w: unsupported receipt type %q", entity.ErrValidation, ext)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsResolved() {
		return nil, fmt.Errorf("cannot attach receipt to %s reimbursement %d: %w",
			current.Status, id, workflow.ErrInvalidTransition)
	}

	ref := path.Join("receipts", strconv.FormatInt(id, 10), s.newID()+ext)
	size, err := s.receipts.Save(ctx, ref, content)
	if err != nil {
		s.logger.Error("Failed to store receipt", "id", id, "error", err)
		return nil, err
	}

	matched, err := s.repo.UpdateReceipt(ctx, id, ref, entity.StatusPending)
	if err == nil && !matched {
		err = s.lostRace(ctx, id, "cannot attach receipt to")
	}
	if err != nil {
		s.removeReceipt(ctx, ref)
		return nil, err
	}

	updated := current.Clone()
	updated.ReceiptRef = &ref

	if current.ReceiptRef != nil && *current.ReceiptRef != ref {
		s.removeReceipt(ctx, *current.ReceiptRef)
	}

	s.logger.Info("Receipt attached", "id", id, "ref", ref, "size", size)
	return updated, nil
}

// OpenReceipt returns the receipt bytes and reference for a request
func (s *reimbursementServiceImpl) OpenReceipt(ctx context.Context, id int64) ([]byte, string, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if current.ReceiptRef == nil {
		return nil, "", fmt.Errorf("receipt for reimbursement %d: %w", id, entity.ErrNotFound)
	}

	if !s.receipts.Exists(ctx, *current.ReceiptRef) {
		s.logger.Error("Receipt file missing", "id", id, "ref", *current.ReceiptRef)
		return nil, "", fmt.Errorf("receipt for reimbursement %d: %w", id, entity.ErrNotFound)
	}

	content, err := s.receipts.Read(ctx, *current.ReceiptRef)
	if err != nil {
		return nil, "", err
	}
	return content, *current.ReceiptRef, nil
}

// lostRace explains a conditional write that matched no row: the request was
// either deleted or left pending since it was read
func (s *reimbursementServiceImpl) lostRace(ctx context.Context, id int64, action string) error {
	latest, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if latest == nil {
		return fmt.Errorf("reimbursement %d: %w", id, entity.ErrNotFound)
	}
	return fmt.Errorf("%s %s reimbursement %d: %w", action, latest.Status, id, workflow.ErrInvalidTransition)
}

func (s *reimbursementServiceImpl) removeReceipt(ctx context.Context, ref string) {
	if err := s.receipts.Delete(ctx, ref); err != nil {
		s.logger.Error("Failed to remove receipt file", "ref", ref, "error", err)
	}
}

func validateSubmit(author string, req SubmitRequest) error {
	if err := utils.ValidateRequired("author", author); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}
	if err := utils.ValidateRequired("description", req.Description); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}
	if err := utils.ValidateRequired("type", req.Type); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}
	return nil
}

func validateUpdate(r *entity.Reimbursement) error {
	if r == nil {
		return fmt.Errorf("%w: reimbursement is required", entity.ErrValidation)
	}
	if r.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", entity.ErrValidation)
	}
	if err := validateSubmit(r.Author, SubmitRequest{Amount: r.Amount, Description: r.Description, Type: r.Type}); err != nil {
		return err
	}
	if err := utils.ValidateRequired("status", r.Status); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}
	return nil
}
