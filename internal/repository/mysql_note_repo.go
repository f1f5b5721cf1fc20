package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/homedash/internal/model"
)

// MySQLNoteRepo はMySQLを使用したメモリポジトリ。
// DSNにはparseTime=trueが設定されている前提とする（database.Openが付与する）。
type MySQLNoteRepo struct {
	db *sql.DB
}

// NewMySQLNoteRepo はMySQLNoteRepoを生成する。
func NewMySQLNoteRepo(db *sql.DB) *MySQLNoteRepo {
	return &MySQLNoteRepo{db: db}
}

// ListByOwner は指定ユーザーのメモを新しい順に取得する。
func (r *MySQLNoteRepo) ListByOwner(ctx context.Context, ownerEmail string) ([]*model.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, text, created_at, owner_email FROM notes WHERE owner_email = ? ORDER BY created_at DESC, id DESC",
		ownerEmail,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	return scanNotes(rows)
}

// Create はメモを作成し、AUTO_INCREMENTで採番されたIDを設定する。
func (r *MySQLNoteRepo) Create(ctx context.Context, note *model.Note) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO notes (text, created_at, owner_email) VALUES (?, ?, ?)",
		note.Text, note.CreatedAt, note.OwnerEmail,
	)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted note id: %w", err)
	}
	note.ID = id
	return nil
}

// compile-time interface check
var _ NoteRepository = (*MySQLNoteRepo)(nil)
