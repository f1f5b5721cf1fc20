// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/homedash/internal/model"
)

// NoteRepository はメモデータの永続化インターフェース。
type NoteRepository interface {
	// ListByOwner は指定ユーザーが所有するメモを作成日時の降順で全件取得する。
	// 作成日時が同じ場合はIDの降順とする。該当がない場合は空スライスを返す。
	ListByOwner(ctx context.Context, ownerEmail string) ([]*model.Note, error)

	// Create はメモを保存し、採番されたIDをnote.IDに設定する。
	Create(ctx context.Context, note *model.Note) error
}
