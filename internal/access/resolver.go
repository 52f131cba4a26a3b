// Package access はユーザー間のデータ共有に基づくアクセス判定を提供する。
//
// 共有は一方向で、ユーザーは最大1人の共有先（partner_id）を持つ。
// AがBに共有している場合、BはAのデータを閲覧・編集できるが、その逆は成り立たない。
// 推移性は無い（A→B、B→Cの共有があってもCはAのデータにアクセスできない）。
package access

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/cyclelog/internal/model"
)

// UserStore はアクセス判定に必要なユーザー操作のインターフェース。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePartner(ctx context.Context, userID string, partnerID *string) error
	ListSharingWith(ctx context.Context, granteeID string) ([]string, error)
}

// DenialRecorder はアクセス拒否の記録先。
type DenialRecorder interface {
	RecordAuthorizationDenied()
}

// Resolver はアクセス権限の判定と共有設定を行う。
type Resolver struct {
	users   UserStore
	metrics DenialRecorder
}

// NewResolver はResolverを生成する。metricsはnilでもよい。
func NewResolver(users UserStore, metrics DenialRecorder) *Resolver {
	return &Resolver{users: users, metrics: metrics}
}

// CanAct はactorがtargetのデータを操作できるかを返す。
// 本人であるか、targetの共有先がactorである場合にtrueとなる。
func (r *Resolver) CanAct(ctx context.Context, actorID, targetID string) (bool, error) {
	if actorID == "" || targetID == "" {
		return false, nil
	}
	if actorID == targetID {
		return true, nil
	}
	if !isUserID(targetID) {
		return false, nil
	}

	target, err := r.users.FindByID(ctx, targetID)
	if err != nil {
		return false, fmt.Errorf("対象ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return false, nil
	}
	return target.SharesWith(actorID), nil
}

// Authorize はCanActがfalseの場合にFORBIDDENエラーを返す。
// 対象ユーザーが存在しない場合もNotFoundではなくFORBIDDENとして扱う。
func (r *Resolver) Authorize(ctx context.Context, actorID, targetID string) error {
	ok, err := r.CanAct(ctx, actorID, targetID)
	if err != nil {
		return err
	}
	if !ok {
		if r.metrics != nil {
			r.metrics.RecordAuthorizationDenied()
		}
		slog.Warn("アクセスを拒否しました",
			slog.String("actor_id", actorID),
			slog.String("target_id", targetID),
		)
		return model.NewForbiddenError()
	}
	return nil
}

// ListVisibleTo はactorがデータを閲覧できるユーザーIDの一覧を返す。
// 先頭は常にactor自身で、以降はID順に並ぶ。
func (r *Resolver) ListVisibleTo(ctx context.Context, actorID string) ([]string, error) {
	sharing, err := r.users.ListSharingWith(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("共有元ユーザーの取得に失敗しました: %w", err)
	}

	others := make([]string, 0, len(sharing))
	for _, id := range sharing {
		if id != actorID {
			others = append(others, id)
		}
	}
	sort.Strings(others)

	return append([]string{actorID}, others...), nil
}

// SetShare はownerの共有先をgranteeに置き換える。
// granteeはユーザーIDまたはメールアドレスで指定でき、IDでの検索を優先する。
// 受け手側の同意は不要。
func (r *Resolver) SetShare(ctx context.Context, ownerID, granteeEmailOrID string) (*model.User, error) {
	ref := strings.TrimSpace(granteeEmailOrID)
	if ref == "" {
		return nil, model.NewValidationError("共有先のメールアドレスまたはユーザーIDを指定してください。")
	}

	grantee, err := r.findGrantee(ctx, ref)
	if err != nil {
		return nil, err
	}
	if grantee == nil {
		return nil, model.NewUserNotFoundError()
	}
	if grantee.ID == ownerID {
		return nil, model.NewValidationError("自分自身を共有先に設定することはできません。")
	}

	if err := r.users.UpdatePartner(ctx, ownerID, &grantee.ID); err != nil {
		return nil, fmt.Errorf("共有先の更新に失敗しました: %w", err)
	}

	slog.Info("共有先を設定しました",
		slog.String("owner_id", ownerID),
		slog.String("grantee_id", grantee.ID),
	)
	return grantee, nil
}

// ClearShare はownerの共有設定を解除する。
func (r *Resolver) ClearShare(ctx context.Context, ownerID string) error {
	if err := r.users.UpdatePartner(ctx, ownerID, nil); err != nil {
		return fmt.Errorf("共有設定の解除に失敗しました: %w", err)
	}
	slog.Info("共有設定を解除しました", slog.String("owner_id", ownerID))
	return nil
}

func (r *Resolver) findGrantee(ctx context.Context, ref string) (*model.User, error) {
	if isUserID(ref) {
		user, err := r.users.FindByID(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("共有先ユーザーの取得に失敗しました: %w", err)
		}
		if user != nil {
			return user, nil
		}
	}
	user, err := r.users.FindByEmail(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("共有先ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// isUserID はユーザーIDとして解釈できる文字列かを返す。
func isUserID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
