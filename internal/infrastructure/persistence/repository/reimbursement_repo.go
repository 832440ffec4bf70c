package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/garyjia/ers-reimbursement/internal/application/port"
	"github.com/garyjia/ers-reimbursement/internal/domain/entity"
	"github.com/garyjia/ers-reimbursement/pkg/database"
	"go.uber.org/zap"
)

// baseQuery joins a reimbursement with its lookup names for display
const baseQuery = `
	SELECT
		rb.reimb_id,
		rb.amount,
		rb.submitted,
		rb.resolved,
		rb.receipt,
		rb.description,
		eu.username AS author,
		eu2.username AS resolver,
		rs.reimb_status AS reimb_status,
		rt.reimb_type AS reimb_type
	FROM ers_reimbursements rb
	JOIN ers_reimb_types rt ON rb.reimb_type_id = rt.reimb_type_id
	JOIN ers_reimb_statuses rs ON rb.reimb_status_id = rs.reimb_status_id
	LEFT JOIN ers_users eu ON rb.author_id = eu.ers_user_id
	LEFT JOIN ers_users eu2 ON rb.resolver_id = eu2.ers_user_id
`

const orderByID = ` ORDER BY rb.reimb_id`

// uniqueKeyClauses is the allow-list for GetByUniqueKey
var uniqueKeyClauses = map[entity.LookupKey]string{
	entity.LookupKeyID:       "rb.reimb_id = ?",
	entity.LookupKeyAuthor:   "eu.username = ?",
	entity.LookupKeyResolver: "eu2.username = ?",
	entity.LookupKeyStatus:   "rs.reimb_status = ?",
	entity.LookupKeyType:     "rt.reimb_type = ?",
	entity.LookupKeyReceipt:  "rb.receipt = ?",
}

// ReimbursementRepository implements port.ReimbursementRepository
type ReimbursementRepository struct {
	db     *database.DB
	cache  LookupCache
	logger *zap.Logger
}

// NewReimbursementRepository creates a reimbursement repository on an injected pool.
// cache may be nil, in which case every status/type name is resolved by query.
func NewReimbursementRepository(db *database.DB, cache LookupCache, logger *zap.Logger) port.ReimbursementRepository {
	return &ReimbursementRepository{
		db:     db,
		cache:  cache,
		logger: logger,
	}
}

// ListAll retrieves every reimbursement
func (r *ReimbursementRepository) ListAll(ctx context.Context) (list []*entity.Reimbursement, err error) {
	defer observe("list_all", time.Now(), &err)

	list, err = r.query(ctx, baseQuery+orderByID)
	if err != nil {
		r.logger.Error("Failed to list reimbursements", zap.Error(err))
		return nil, fmt.Errorf("failed to list reimbursements: %w", err)
	}
	return list, nil
}

// GetByID retrieves a reimbursement by ID
func (r *ReimbursementRepository) GetByID(ctx context.Context, id int64) (reimb *entity.Reimbursement, err error) {
	defer observe("get_by_id", time.Now(), &err)

	reimb, err = r.queryOne(ctx, baseQuery+" WHERE rb.reimb_id = ?", id)
	if err != nil {
		r.logger.Error("Failed to get reimbursement by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get reimbursement: %w", err)
	}
	return reimb, nil
}

// ListByAuthorID retrieves reimbursements submitted by an internal user id
func (r *ReimbursementRepository) ListByAuthorID(ctx context.Context, userID int64) (list []*entity.Reimbursement, err error) {
	defer observe("list_by_author", time.Now(), &err)

	list, err = r.query(ctx, baseQuery+" WHERE rb.author_id = ?"+orderByID, userID)
	if err != nil {
		r.logger.Error("Failed to list reimbursements by author", zap.Int64("author_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list reimbursements by author: %w", err)
	}
	return list, nil
}

// GetByUniqueKey retrieves the first reimbursement matching an allow-listed key
func (r *ReimbursementRepository) GetByUniqueKey(ctx context.Context, key entity.LookupKey, value string) (reimb *entity.Reimbursement, err error) {
	defer observe("get_by_unique_key", time.Now(), &err)

	clause, ok := uniqueKeyClauses[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidLookupKey, key)
	}

	var arg interface{} = value
	if key == entity.LookupKeyID {
		id, convErr := strconv.ParseInt(value, 10, 64)
		if convErr != nil {
			return nil, fmt.Errorf("%w: id must be an integer, got %q", entity.ErrValidation, value)
		}
		arg = id
	}

	reimb, err = r.queryOne(ctx, baseQuery+" WHERE "+clause+orderByID+" LIMIT 1", arg)
	if err != nil {
		r.logger.Error("Failed to get reimbursement by key",
			zap.String("key", string(key)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get reimbursement by %s: %w", key, err)
	}
	return reimb, nil
}

// ListByFilter retrieves reimbursements by status name and/or type name.
// With neither filter it returns an empty result rather than every row.
func (r *ReimbursementRepository) ListByFilter(ctx context.Context, status, reimbType string) (list []*entity.Reimbursement, err error) {
	defer observe("list_by_filter", time.Now(), &err)

	var (
		where string
		args  []interface{}
	)
	switch {
	case status != "" && reimbType != "":
		where = " WHERE rs.reimb_status = ? AND rt.reimb_type = ?"
		args = []interface{}{status, reimbType}
	case status != "":
		where = " WHERE rs.reimb_status = ?"
		args = []interface{}{status}
	case reimbType != "":
		where = " WHERE rt.reimb_type = ?"
		args = []interface{}{reimbType}
	default:
		return []*entity.Reimbursement{}, nil
	}

	list, err = r.query(ctx, baseQuery+where+orderByID, args...)
	if err != nil {
		r.logger.Error("Failed to filter reimbursements",
			zap.String("status", status),
			zap.String("type", reimbType),
			zap.Error(err))
		return nil, fmt.Errorf("failed to filter reimbursements: %w", err)
	}
	return list, nil
}

// Create inserts a new pending reimbursement and sets its ID.
// Resolved time, receipt and resolver are always cleared.
func (r *ReimbursementRepository) Create(ctx context.Context, reimb *entity.Reimbursement) (_ *entity.Reimbursement, err error) {
	defer observe("create", time.Now(), &err)

	submitted := reimb.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}

	query := `
		INSERT INTO ers_reimbursements (
			amount, submitted, resolved, description, receipt,
			author_id, resolver_id, reimb_status_id, reimb_type_id
		) VALUES (?, ?, NULL, ?, NULL, ?, NULL, ?, ?)
		RETURNING reimb_id
	`

	var id int64
	err = r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		typeID, err := r.resolveTypeID(txCtx, exec, reimb.Type)
		if err != nil {
			return err
		}
		authorID, err := r.resolveUserID(txCtx, exec, reimb.Author)
		if err != nil {
			return err
		}
		pendingID, err := r.resolveStatusID(txCtx, exec, entity.StatusPending)
		if err != nil {
			return err
		}

		return exec.QueryRowContext(txCtx, r.db.Rebind(query),
			reimb.Amount,
			submitted,
			reimb.Description,
			authorID,
			pendingID,
			typeID,
		).Scan(&id)
	})
	if err != nil {
		r.logger.Error("Failed to create reimbursement",
			zap.String("author", reimb.Author),
			zap.String("type", reimb.Type),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create reimbursement: %w", err)
	}

	reimb.ID = id
	reimb.SubmittedAt = submitted
	reimb.Status = entity.StatusPending
	reimb.ResolvedAt = nil
	reimb.ReceiptRef = nil
	reimb.Resolver = nil

	return reimb, nil
}

// Update overwrites every mutable column of the row identified by reimb.ID.
// The submitted time is fixed at creation and never written here.
// All names are resolved before the write, in the same transaction.
func (r *ReimbursementRepository) Update(ctx context.Context, reimb *entity.Reimbursement) (existed bool, err error) {
	defer observe("update", time.Now(), &err)

	query := `
		UPDATE ers_reimbursements SET
			amount = ?, resolved = ?, description = ?, receipt = ?,
			author_id = ?, resolver_id = ?, reimb_type_id = ?, reimb_status_id = ?
		WHERE reimb_id = ?
	`

	err = r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		typeID, err := r.resolveTypeID(txCtx, exec, reimb.Type)
		if err != nil {
			return err
		}
		statusID, err := r.resolveStatusID(txCtx, exec, reimb.Status)
		if err != nil {
			return err
		}
		var resolverID sql.NullInt64
		if reimb.Resolver != nil && *reimb.Resolver != "" {
			id, err := r.resolveUserID(txCtx, exec, *reimb.Resolver)
			if err != nil {
				return err
			}
			resolverID = sql.NullInt64{Int64: id, Valid: true}
		}
		authorID, err := r.resolveUserID(txCtx, exec, reimb.Author)
		if err != nil {
			return err
		}

		result, err := exec.ExecContext(txCtx, r.db.Rebind(query),
			reimb.Amount,
			nullTime(reimb.ResolvedAt),
			reimb.Description,
			nullString(reimb.ReceiptRef),
			authorID,
			resolverID,
			typeID,
			statusID,
			reimb.ID,
		)
		if err != nil {
			return err
		}

		existed, err = rowsMatched(result)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to update reimbursement", zap.Int64("id", reimb.ID), zap.Error(err))
		return false, fmt.Errorf("failed to update reimbursement: %w", err)
	}

	if !existed {
		r.logger.Debug("Update matched no reimbursement", zap.Int64("id", reimb.ID))
	}
	return existed, nil
}

// Transition records a resolution only while the row is still in status from.
// matched is false when the row is absent or has already moved on.
func (r *ReimbursementRepository) Transition(ctx context.Context, reimb *entity.Reimbursement, from string) (matched bool, err error) {
	defer observe("transition", time.Now(), &err)

	query := `
		UPDATE ers_reimbursements SET
			reimb_status_id = ?, resolver_id = ?, resolved = ?
		WHERE reimb_id = ? AND reimb_status_id = ?
	`

	err = r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		fromID, err := r.resolveStatusID(txCtx, exec, from)
		if err != nil {
			return err
		}
		toID, err := r.resolveStatusID(txCtx, exec, reimb.Status)
		if err != nil {
			return err
		}
		var resolverID sql.NullInt64
		if reimb.Resolver != nil && *reimb.Resolver != "" {
			id, err := r.resolveUserID(txCtx, exec, *reimb.Resolver)
			if err != nil {
				return err
			}
			resolverID = sql.NullInt64{Int64: id, Valid: true}
		}

		result, err := exec.ExecContext(txCtx, r.db.Rebind(query),
			toID, resolverID, nullTime(reimb.ResolvedAt), reimb.ID, fromID)
		if err != nil {
			return err
		}
		matched, err = rowsMatched(result)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to transition reimbursement",
			zap.Int64("id", reimb.ID),
			zap.String("from", from),
			zap.String("to", reimb.Status),
			zap.Error(err))
		return false, fmt.Errorf("failed to transition reimbursement: %w", err)
	}
	return matched, nil
}

// UpdateReceipt sets the receipt reference only while the row is in status while.
// matched is false when the row is absent or in another status.
func (r *ReimbursementRepository) UpdateReceipt(ctx context.Context, id int64, ref, while string) (matched bool, err error) {
	defer observe("update_receipt", time.Now(), &err)

	err = r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		statusID, err := r.resolveStatusID(txCtx, exec, while)
		if err != nil {
			return err
		}

		result, err := exec.ExecContext(txCtx,
			r.db.Rebind(`UPDATE ers_reimbursements SET receipt = ? WHERE reimb_id = ? AND reimb_status_id = ?`),
			ref, id, statusID)
		if err != nil {
			return err
		}
		matched, err = rowsMatched(result)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to update receipt", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to update receipt: %w", err)
	}
	return matched, nil
}

// DeleteByID removes a reimbursement. No audit row is kept.
func (r *ReimbursementRepository) DeleteByID(ctx context.Context, id int64) (existed bool, err error) {
	defer observe("delete", time.Now(), &err)

	result, err := r.db.Executor(ctx).ExecContext(ctx,
		r.db.Rebind(`DELETE FROM ers_reimbursements WHERE reimb_id = ?`), id)
	if err != nil {
		r.logger.Error("Failed to delete reimbursement", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to delete reimbursement: %w", err)
	}

	return rowsMatched(result)
}

func rowsMatched(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *ReimbursementRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Reimbursement, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*entity.Reimbursement{}
	for rows.Next() {
		reimb, err := scanReimbursement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reimbursement: %w", err)
		}
		list = append(list, reimb)
	}
	return list, rows.Err()
}

func (r *ReimbursementRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*entity.Reimbursement, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx, r.db.Rebind(query), args...)
	reimb, err := scanReimbursement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reimb, nil
}

func (r *ReimbursementRepository) resolveStatusID(ctx context.Context, exec database.Executor, name string) (int64, error) {
	return r.resolveCached(ctx, exec, "status", name,
		`SELECT reimb_status_id FROM ers_reimb_statuses WHERE reimb_status = ?`)
}

func (r *ReimbursementRepository) resolveTypeID(ctx context.Context, exec database.Executor, name string) (int64, error) {
	return r.resolveCached(ctx, exec, "type", name,
		`SELECT reimb_type_id FROM ers_reimb_types WHERE reimb_type = ?`)
}

func (r *ReimbursementRepository) resolveUserID(ctx context.Context, exec database.Executor, username string) (int64, error) {
	return r.resolve(ctx, exec, "user", username,
		`SELECT ers_user_id FROM ers_users WHERE username = ?`)
}

func (r *ReimbursementRepository) resolveCached(ctx context.Context, exec database.Executor, kind, name, query string) (int64, error) {
	if r.cache == nil {
		return r.resolve(ctx, exec, kind, name, query)
	}

	key := kind + ":" + name
	if id, ok := r.cache.Get(key); ok {
		return id, nil
	}

	id, err := r.resolve(ctx, exec, kind, name, query)
	if err != nil {
		return 0, err
	}
	r.cache.Add(key, id)
	return id, nil
}

func (r *ReimbursementRepository) resolve(ctx context.Context, exec database.Executor, kind, name, query string) (int64, error) {
	var id int64
	err := exec.QueryRowContext(ctx, r.db.Rebind(query), name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &entity.UnresolvedNameError{Kind: kind, Name: name}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s %q: %w", kind, name, err)
	}
	return id, nil
}

// Verify interface compliance
var _ port.ReimbursementRepository = (*ReimbursementRepository)(nil)
