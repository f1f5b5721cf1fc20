// Package note はメモのドメインロジックを提供する。
package note

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/homedash/internal/model"
	"github.com/hitoshi/homedash/internal/repository"
)

// ErrNoIdentity は認証済みIdentityがない状態で呼び出されたことを表す。
var ErrNoIdentity = errors.New("authenticated identity is required")

// Service はメモの一覧取得と作成を提供する。
// 所有者は常に呼び出し元のIdentityから決まり、クライアントの指定は使わない。
type Service struct {
	repo repository.NoteRepository
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.NoteRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// ListNotes は呼び出し元が所有するメモを新しい順に返す。
func (s *Service) ListNotes(ctx context.Context, identity *model.Identity) ([]*model.Note, error) {
	if identity == nil || identity.Email == "" {
		return nil, ErrNoIdentity
	}

	notes, err := s.repo.ListByOwner(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("メモ一覧の取得に失敗しました: %w", err)
	}
	if notes == nil {
		notes = []*model.Note{}
	}
	return notes, nil
}

// CreateNote はメモを作成する。ID、作成日時、所有者はサーバー側で設定する。
func (s *Service) CreateNote(ctx context.Context, identity *model.Identity, text string) (*model.Note, error) {
	if identity == nil || identity.Email == "" {
		return nil, ErrNoIdentity
	}

	// データベースはマイクロ秒精度で保存するため、返却値と一覧の値を一致させる
	n := &model.Note{
		Text:       text,
		CreatedAt:  s.now().UTC().Truncate(time.Microsecond),
		OwnerEmail: identity.Email,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("メモの作成に失敗しました: %w", err)
	}
	return n, nil
}
