// Package auth はOAuthログインとセッションの発行・破棄を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/cyclelog/internal/model"
)

// OAuthUserInfo はIdPから取得したユーザー情報。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider は外部IdPの認可コードフロー。
type OAuthProvider interface {
	GetLoginURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// UserStore は認証で使うユーザーの永続化操作。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error
}

// IdentityFinder はIdPの識別子からidentityを引く。
type IdentityFinder interface {
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionStore はセッションの永続化操作。
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

// ErrSessionRequired はセッションIDが空の場合に返される。
var ErrSessionRequired = errors.New("session ID is required")

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // 秒
}

// Service はログイン、ログアウト、現在ユーザーの取得を行う。
type Service struct {
	oauth      OAuthProvider
	users      UserStore
	identities IdentityFinder
	sessions   SessionStore
	config     ServiceConfig

	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	users UserStore,
	identities IdentityFinder,
	sessions SessionStore,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:      oauth,
		users:      users,
		identities: identities,
		sessions:   sessions,
		config:     config,
		now:        time.Now,
	}
}

// GetLoginURL はIdPの認可URLを返す。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback は認可コードを処理してセッションを発行する。
// 初回ログインの場合はユーザーとidentityを同一トランザクションで作成する。
// メールアドレスは共有相手の検索キーになるため小文字に正規化して保存する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string
	if identity != nil {
		userID = identity.UserID
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", info.Provider),
		)
	} else {
		userID, err = s.register(ctx, info)
		if err != nil {
			return nil, err
		}
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *Service) register(ctx context.Context, info *OAuthUserInfo) (string, error) {
	now := s.now()
	user := &model.User{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(strings.TrimSpace(info.Email)),
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.users.CreateWithIdentity(ctx, user, identity); err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user.ID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションに紐づくユーザーを返す。
// セッションが無効、またはユーザーが削除済みの場合はUNAUTHORIZEDのAPIErrorを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}
	return user, nil
}

func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
