package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/homedash/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用したメモリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

// ListByOwner は指定ユーザーのメモを新しい順に取得する。
func (r *PostgresNoteRepo) ListByOwner(ctx context.Context, ownerEmail string) ([]*model.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, text, created_at, owner_email
		 FROM notes
		 WHERE owner_email = $1
		 ORDER BY created_at DESC, id DESC`,
		ownerEmail,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	return scanNotes(rows)
}

// Create はメモを作成し、RETURNINGで採番されたIDを設定する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO notes (text, created_at, owner_email)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		note.Text, note.CreatedAt, note.OwnerEmail,
	).Scan(&note.ID)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

// scanNotes は行セットをメモのスライスに変換する。
func scanNotes(rows *sql.Rows) ([]*model.Note, error) {
	notes := []*model.Note{}
	for rows.Next() {
		n := &model.Note{}
		if err := rows.Scan(&n.ID, &n.Text, &n.CreatedAt, &n.OwnerEmail); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.CreatedAt = n.CreatedAt.UTC()
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
