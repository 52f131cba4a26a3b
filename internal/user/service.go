// Package user はアカウント単位の操作（退会）を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/cyclelog/internal/model"
)

// AccountStore は退会処理で使うユーザーの永続化操作。
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	DeleteByID(ctx context.Context, id string) error
}

// SessionRevoker はユーザーの全セッションを破棄する。
type SessionRevoker interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// Service は退会処理を提供する。
type Service struct {
	users    AccountStore
	sessions SessionRevoker
}

// NewService はServiceを生成する。
func NewService(users AccountStore, sessions SessionRevoker) *Service {
	return &Service{users: users, sessions: sessions}
}

// Withdraw はユーザーを退会させる。
// セッションを先に破棄してからユーザーを削除する。identities、cycles、cycle_daysはCASCADE削除され、
// このユーザーを共有先に指定していた他ユーザーのpartner_idはNULLに戻る。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します", slog.String("user_id", userID))

	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	if err := s.users.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.String("user_id", userID))
	return nil
}
