package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/ers-reimbursement/internal/application/port"
	"github.com/garyjia/ers-reimbursement/internal/domain/entity"
	"github.com/garyjia/ers-reimbursement/pkg/database"
	"go.uber.org/zap"
)

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewUserRepository creates a read-only user directory
func NewUserRepository(db *database.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetByUsername retrieves a user by login name
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	query := `SELECT ers_user_id, username, role FROM ers_users WHERE username = ?`

	var user entity.User
	err := r.db.Executor(ctx).QueryRowContext(ctx, r.db.Rebind(query), username).Scan(
		&user.ID,
		&user.Username,
		&user.Role,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user by username", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
