// Package barbershop は所有者で絞り込んだ店舗の参照・作成・更新・削除を提供する。
//
// 全ての操作は呼び出しごとにセッションストアから呼び出し元を解決し、
// その所有者に限定したクエリのみを発行する。結果は常にResultとして返し、
// エラーやpanicを呼び出し元へ伝播させない。
package barbershop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/barberadmin/internal/metrics"
	"github.com/hitoshi/barberadmin/internal/model"
	"github.com/hitoshi/barberadmin/internal/repository"
	"github.com/hitoshi/barberadmin/internal/security"
)

// Invalidator は変更後に古くなったページビューを破棄する。
// viewcache.Cacheが実装する。
type Invalidator interface {
	Invalidate(ctx context.Context, ownerID string, routes ...string) error
}

// Deps はActionsの依存関係。
// Sanitizer、URLGuard、Validatorがnilの場合は既定の実装を使用する。
// ImageProber、Invalidator、Metricsは任意。
type Deps struct {
	Identity    IdentityResolver
	Repo        repository.BarbershopRepository
	Validator   *FormValidator
	Sanitizer   security.TextSanitizerService
	URLGuard    security.URLGuardService
	ImageProber security.ImageProber
	Invalidator Invalidator
	Metrics     metrics.MetricsCollector
}

// Actions は所有者スコープの店舗操作を提供する。
type Actions struct {
	identity    IdentityResolver
	repo        repository.BarbershopRepository
	validator   *FormValidator
	sanitizer   security.TextSanitizerService
	urlGuard    security.URLGuardService
	prober      security.ImageProber
	invalidator Invalidator
	metrics     metrics.MetricsCollector
}

// NewActions はActionsを生成する。
func NewActions(deps Deps) *Actions {
	a := &Actions{
		identity:    deps.Identity,
		repo:        deps.Repo,
		validator:   deps.Validator,
		sanitizer:   deps.Sanitizer,
		urlGuard:    deps.URLGuard,
		prober:      deps.ImageProber,
		invalidator: deps.Invalidator,
		metrics:     deps.Metrics,
	}
	if a.validator == nil {
		a.validator = NewFormValidator()
	}
	if a.sanitizer == nil {
		a.sanitizer = security.NewTextSanitizer()
	}
	if a.urlGuard == nil {
		a.urlGuard = security.NewURLGuard()
	}
	return a
}

// List は呼び出し元の店舗一覧をcreated_at降順で返す。
// 未認証の場合はエラーではなく空の一覧を返す。
func (a *Actions) List(ctx context.Context) (res Result[[]model.BarbershopSummary]) {
	defer a.observe("list", time.Now(), func() *model.APIError { return res.Err() })
	defer recoverResult(&res)

	userID, apiErr := a.resolve(ctx)
	if apiErr != nil {
		return fail[[]model.BarbershopSummary](apiErr)
	}
	if userID == "" {
		empty := []model.BarbershopSummary{}
		return ok(&empty)
	}

	shops, err := a.repo.ListByOwner(ctx, userID)
	if err != nil {
		return fail[[]model.BarbershopSummary](storeFailure("list", err))
	}
	return ok(&shops)
}

// GetByID は呼び出し元が所有する店舗を返す。
// 存在しない場合と他ユーザー所有の場合は同一の「見つからない」結果になる。
func (a *Actions) GetByID(ctx context.Context, id string) (res Result[model.Barbershop]) {
	defer a.observe("get", time.Now(), func() *model.APIError { return res.Err() })
	defer recoverResult(&res)

	userID, apiErr := a.requireUser(ctx)
	if apiErr != nil {
		return fail[model.Barbershop](apiErr)
	}
	id, valid := canonicalID(id)
	if !valid {
		return fail[model.Barbershop](model.NewBarbershopNotFoundError())
	}

	shop, err := a.repo.FindByIDAndOwner(ctx, id, userID)
	if err != nil {
		return fail[model.Barbershop](storeFailure("get", err))
	}
	if shop == nil {
		return fail[model.Barbershop](model.NewBarbershopNotFoundError())
	}
	return ok(shop)
}

// Create は呼び出し元を所有者として店舗を作成する。
// 入力中の所有者指定は無視し、テーマは既定パレットに指定キーを重ねる。
func (a *Actions) Create(ctx context.Context, input CreateInput) (res Result[model.Barbershop]) {
	defer a.observe("create", time.Now(), func() *model.APIError { return res.Err() })
	defer recoverResult(&res)

	// 1. 呼び出し元を解決
	userID, apiErr := a.requireUser(ctx)
	if apiErr != nil {
		return fail[model.Barbershop](apiErr)
	}

	if len(input.UserID) > 0 {
		slog.Warn("ignored owner supplied in create payload", slog.String("user_id", userID))
	}

	// 2. 整形と検証（ストアへの書き込み前）
	input = input.normalize(a.sanitizer)
	if violations := a.check(ctx, input.form(), urlsOf(input.LogoURL, input.Theme)); len(violations) > 0 {
		return fail[model.Barbershop](model.NewValidationError(violations))
	}

	// 3. 所有者とテーマを確定して作成
	shop := &model.Barbershop{
		ID:                         uuid.New().String(),
		UserID:                     userID,
		Name:                       input.Name,
		Address:                    input.Address,
		Phone:                      input.Phone,
		LogoURL:                    input.LogoURL,
		OpeningTime:                input.OpeningTime,
		ClosingTime:                input.ClosingTime,
		AppointmentDurationMinutes: input.AppointmentDurationMinutes,
		Theme:                      input.Theme.patch().Merge(model.DefaultTheme()),
	}

	created, err := a.repo.Create(ctx, shop)
	if err != nil {
		return fail[model.Barbershop](storeFailure("create", err))
	}

	slog.Info("barbershop created",
		slog.String("user_id", userID),
		slog.String("barbershop_id", created.ID),
	)

	// 4. 一覧ビューを無効化
	a.invalidate(ctx, userID, ListRoute)
	return ok(created)
}

// Update は呼び出し元が所有する店舗を部分更新する。
// id、user_id、created_at、updated_atは入力にあっても破棄する。
// テーマは指定キーのみ保存済みの値に上書きする。
func (a *Actions) Update(ctx context.Context, id string, input UpdateInput) (res Result[model.Barbershop]) {
	defer a.observe("update", time.Now(), func() *model.APIError { return res.Err() })
	defer recoverResult(&res)

	// 1. 呼び出し元を解決
	userID, apiErr := a.requireUser(ctx)
	if apiErr != nil {
		return fail[model.Barbershop](apiErr)
	}
	id, valid := canonicalID(id)
	if !valid {
		return fail[model.Barbershop](model.NewBarbershopNotFoundError())
	}

	// 2. ストア管理項目を破棄
	if stripped := input.strippedFields(); len(stripped) > 0 {
		slog.Warn("stripped store-managed fields from update payload",
			slog.String("user_id", userID),
			slog.String("barbershop_id", id),
			slog.Any("fields", stripped),
		)
	}

	// 3. 整形と検証
	input = input.normalize(a.sanitizer)
	if violations := a.check(ctx, input.form(), urlsOf(input.LogoURL, input.Theme)); len(violations) > 0 {
		return fail[model.Barbershop](model.NewValidationError(violations))
	}

	// 4. 所有者で絞り込んで更新（変更がなければ現在の値を返す）
	patch := input.patch()
	var (
		shop *model.Barbershop
		err  error
	)
	if patch.Empty() {
		shop, err = a.repo.FindByIDAndOwner(ctx, id, userID)
	} else {
		shop, err = a.repo.UpdateByIDAndOwner(ctx, id, userID, patch)
	}
	if err != nil {
		return fail[model.Barbershop](storeFailure("update", err))
	}
	if shop == nil {
		return fail[model.Barbershop](model.NewBarbershopNotFoundError())
	}

	if !patch.Empty() {
		slog.Info("barbershop updated",
			slog.String("user_id", userID),
			slog.String("barbershop_id", id),
		)
		a.invalidate(ctx, userID, ListRoute, DetailRoute(id))
	}
	return ok(shop)
}

// Delete は呼び出し元が所有する店舗を削除する。
// 存在しない場合と他ユーザー所有の場合は同一の「見つからない」結果になる。
func (a *Actions) Delete(ctx context.Context, id string) (res Result[struct{}]) {
	defer a.observe("delete", time.Now(), func() *model.APIError { return res.Err() })
	defer recoverResult(&res)

	userID, apiErr := a.requireUser(ctx)
	if apiErr != nil {
		return fail[struct{}](apiErr)
	}
	id, valid := canonicalID(id)
	if !valid {
		return fail[struct{}](model.NewBarbershopNotFoundError())
	}

	deleted, err := a.repo.DeleteByIDAndOwner(ctx, id, userID)
	if err != nil {
		return fail[struct{}](storeFailure("delete", err))
	}
	if !deleted {
		return fail[struct{}](model.NewBarbershopNotFoundError())
	}

	slog.Info("barbershop deleted",
		slog.String("user_id", userID),
		slog.String("barbershop_id", id),
	)
	a.invalidate(ctx, userID, ListRoute, DetailRoute(id))
	return Result[struct{}]{}
}

// resolve は呼び出し元のユーザーIDを解決する。未認証の場合は空文字列を返す。
func (a *Actions) resolve(ctx context.Context) (string, *model.APIError) {
	userID, err := a.identity.ResolveUserID(ctx)
	if err != nil {
		return "", storeFailure("resolve identity", err)
	}
	return userID, nil
}

// requireUser は呼び出し元のユーザーIDを解決し、未認証の場合はエラーを返す。
func (a *Actions) requireUser(ctx context.Context) (string, *model.APIError) {
	userID, apiErr := a.resolve(ctx)
	if apiErr != nil {
		return "", apiErr
	}
	if userID == "" {
		return "", model.NewUnauthenticatedError()
	}
	return userID, nil
}

// check はフォームの制約とURLの安全性を検証し、違反メッセージを返す。
func (a *Actions) check(ctx context.Context, form shopForm, urls []urlField) []string {
	violations := a.validator.Validate(form)
	if len(violations) > 0 {
		return violations
	}

	for _, u := range urls {
		if err := a.urlGuard.ValidateURL(u.url); err != nil {
			violations = append(violations, fmt.Sprintf("%s must be a public http(s) URL", u.field))
			continue
		}
		if a.prober != nil {
			if err := a.prober.ProbeImage(ctx, u.url); err != nil {
				slog.Info("image probe failed",
					slog.String("field", u.field),
					slog.String("error", err.Error()),
				)
				violations = append(violations, fmt.Sprintf("%s must point to a reachable image", u.field))
			}
		}
	}
	return violations
}

// invalidate はビューキャッシュを無効化する。失敗は操作結果に影響させない。
func (a *Actions) invalidate(ctx context.Context, userID string, routes ...string) {
	if a.invalidator == nil {
		return
	}
	if err := a.invalidator.Invalidate(ctx, userID, routes...); err != nil {
		slog.Warn("failed to invalidate views",
			slog.String("user_id", userID),
			slog.Any("routes", routes),
			slog.String("error", err.Error()),
		)
	}
}

// observe は操作の結果とレイテンシをメトリクスに記録する。
func (a *Actions) observe(action string, start time.Time, result func() *model.APIError) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordAction(action, outcome(result()), time.Since(start))
}

// outcome はエラーからメトリクスのラベル値を決定する。
func outcome(apiErr *model.APIError) string {
	if apiErr == nil {
		return "ok"
	}
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated:
		return "unauthenticated"
	case model.ErrCodeBarbershopNotFound:
		return "not_found"
	case model.ErrCodeValidation:
		return "validation"
	default:
		return "store_error"
	}
}

// storeFailure はストアのエラーをログに記録し、利用者向けの一般的なエラーに変換する。
func storeFailure(op string, err error) *model.APIError {
	slog.Error("barbershop store operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return model.NewStoreError()
}

// recoverResult は操作中のpanicをストアエラーの結果に変換する。
func recoverResult[T any](res *Result[T]) {
	if r := recover(); r != nil {
		slog.Error("panic in barbershop action", slog.Any("panic", r))
		*res = fail[T](model.NewStoreError())
	}
}

// canonicalID はIDをUUIDの標準表記（小文字、ハイフン区切り）に揃える。
// 形式外のIDは存在しないものとして扱うためfalseを返す。
func canonicalID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}
