package repository

import (
	"database/sql"
	"time"

	"github.com/garyjia/ers-reimbursement/internal/domain/entity"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanReimbursement reads one row shaped like baseQuery
func scanReimbursement(row rowScanner) (*entity.Reimbursement, error) {
	var (
		reimb    entity.Reimbursement
		resolved sql.NullTime
		receipt  sql.NullString
		author   sql.NullString
		resolver sql.NullString
	)

	err := row.Scan(
		&reimb.ID,
		&reimb.Amount,
		&reimb.SubmittedAt,
		&resolved,
		&receipt,
		&reimb.Description,
		&author,
		&resolver,
		&reimb.Status,
		&reimb.Type,
	)
	if err != nil {
		return nil, err
	}

	if resolved.Valid {
		t := resolved.Time
		reimb.ResolvedAt = &t
	}
	if receipt.Valid {
		s := receipt.String
		reimb.ReceiptRef = &s
	}
	if resolver.Valid {
		s := resolver.String
		reimb.Resolver = &s
	}
	// author_id is NOT NULL but the join is LEFT for display parity
	reimb.Author = author.String

	return &reimb, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
