package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hitoshi/barberadmin/internal/model"
)

// PostgresBarbershopRepo はPostgreSQLを使用した店舗リポジトリ。
//
// 各操作はトランザクション内で app.user_id を設定してから実行する。
// barbershopsテーブルの行レベルセキュリティポリシーはこの値で所有者を照合するため、
// SQLのWHERE句による所有者絞り込みとポリシーの両方が一致しない限り行は見えない。
type PostgresBarbershopRepo struct {
	db *sql.DB
}

// NewPostgresBarbershopRepo はPostgresBarbershopRepoを生成する。
func NewPostgresBarbershopRepo(db *sql.DB) *PostgresBarbershopRepo {
	return &PostgresBarbershopRepo{db: db}
}

const barbershopColumns = `id, user_id, name, address, phone, logo_url, opening_time, closing_time,
	appointment_duration_minutes, theme, created_at, updated_at`

// ListByOwner は所有者の店舗一覧をcreated_at降順で返す。
func (r *PostgresBarbershopRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.BarbershopSummary, error) {
	var shops []model.BarbershopSummary
	err := r.withOwner(ctx, ownerID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, name, address, phone, created_at
			 FROM barbershops
			 WHERE user_id = $1
			 ORDER BY created_at DESC`,
			ownerID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s model.BarbershopSummary
			var address, phone sql.NullString
			if err := rows.Scan(&s.ID, &s.Name, &address, &phone, &s.CreatedAt); err != nil {
				return err
			}
			s.Address = stringPtr(address)
			s.Phone = stringPtr(phone)
			shops = append(shops, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list barbershops: %w", err)
	}

	if shops == nil {
		shops = []model.BarbershopSummary{}
	}
	return shops, nil
}

// FindByIDAndOwner はIDと所有者で店舗を取得する。見つからない場合はnilを返す。
func (r *PostgresBarbershopRepo) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Barbershop, error) {
	var shop *model.Barbershop
	err := r.withOwner(ctx, ownerID, func(tx *sql.Tx) error {
		var err error
		shop, err = scanBarbershop(tx.QueryRowContext(ctx,
			`SELECT `+barbershopColumns+`
			 FROM barbershops
			 WHERE id = $1 AND user_id = $2`,
			id, ownerID,
		))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find barbershop: %w", err)
	}
	return shop, nil
}

// Create は店舗を作成する。created_at/updated_atはストア側で設定される。
func (r *PostgresBarbershopRepo) Create(ctx context.Context, shop *model.Barbershop) (*model.Barbershop, error) {
	theme, err := json.Marshal(shop.Theme)
	if err != nil {
		return nil, fmt.Errorf("failed to encode theme: %w", err)
	}

	var created *model.Barbershop
	err = r.withOwner(ctx, shop.UserID, func(tx *sql.Tx) error {
		var err error
		created, err = scanBarbershop(tx.QueryRowContext(ctx,
			`INSERT INTO barbershops (id, user_id, name, address, phone, logo_url, opening_time,
			     closing_time, appointment_duration_minutes, theme)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING `+barbershopColumns,
			shop.ID, shop.UserID, shop.Name,
			nullString(shop.Address), nullString(shop.Phone), nullString(shop.LogoURL),
			nullString(shop.OpeningTime), nullString(shop.ClosingTime),
			nullInt(shop.AppointmentDurationMinutes), string(theme),
		))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create barbershop: %w", err)
	}
	return created, nil
}

// UpdateByIDAndOwner はIDと所有者で絞り込んで部分更新する。
// テーマはJSONBの || 演算子で指定キーのみを上書きし、他のキーは保存済みの値を維持する。
// 対象行がない場合はnilを返す。
func (r *PostgresBarbershopRepo) UpdateByIDAndOwner(ctx context.Context, id, ownerID string, patch model.BarbershopPatch) (*model.Barbershop, error) {
	sets, args, err := buildBarbershopSet(patch)
	if err != nil {
		return nil, err
	}
	args = append(args, id, ownerID)

	query := `UPDATE barbershops SET ` + strings.Join(sets, ", ") + fmt.Sprintf(`
		 WHERE id = $%d AND user_id = $%d
		 RETURNING `, len(args)-1, len(args)) + barbershopColumns

	var updated *model.Barbershop
	err = r.withOwner(ctx, ownerID, func(tx *sql.Tx) error {
		var err error
		updated, err = scanBarbershop(tx.QueryRowContext(ctx, query, args...))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update barbershop: %w", err)
	}
	return updated, nil
}

// DeleteByIDAndOwner はIDと所有者で絞り込んで削除する。
func (r *PostgresBarbershopRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	var deleted bool
	err := r.withOwner(ctx, ownerID, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM barbershops WHERE id = $1 AND user_id = $2`,
			id, ownerID,
		)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete barbershop: %w", err)
	}
	return deleted, nil
}

// withOwner はapp.user_idを設定したトランザクション内でfnを実行する。
func (r *PostgresBarbershopRepo) withOwner(ctx context.Context, ownerID string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.user_id', $1, true)`, ownerID); err != nil {
		return fmt.Errorf("failed to set row owner: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// buildBarbershopSet はパッチからSET句と引数を組み立てる。
// updated_atは常に更新する。
func buildBarbershopSet(patch model.BarbershopPatch) ([]string, []any, error) {
	var sets []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Address != nil {
		add("address", nullString(patch.Address))
	}
	if patch.Phone != nil {
		add("phone", nullString(patch.Phone))
	}
	if patch.LogoURL != nil {
		add("logo_url", nullString(patch.LogoURL))
	}
	if patch.OpeningTime != nil {
		add("opening_time", nullString(patch.OpeningTime))
	}
	if patch.ClosingTime != nil {
		add("closing_time", nullString(patch.ClosingTime))
	}
	if patch.AppointmentDurationMinutes != nil {
		add("appointment_duration_minutes", *patch.AppointmentDurationMinutes)
	}
	if patch.Theme != nil {
		themePatch, err := json.Marshal(patch.Theme)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode theme patch: %w", err)
		}
		defaults, err := json.Marshal(model.DefaultTheme())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode default theme: %w", err)
		}
		args = append(args, string(defaults), string(themePatch))
		sets = append(sets, fmt.Sprintf("theme = COALESCE(theme, $%d::jsonb) || $%d::jsonb", len(args)-1, len(args)))
	}

	sets = append(sets, "updated_at = now()")
	return sets, args, nil
}

// scanBarbershop は1行をBarbershopに読み込む。行がない場合はnilを返す。
// themeがNULLの行はデフォルトパレットで補完する。
func scanBarbershop(row *sql.Row) (*model.Barbershop, error) {
	shop := &model.Barbershop{}
	var address, phone, logoURL, opening, closing sql.NullString
	var duration sql.NullInt64
	var theme []byte

	err := row.Scan(
		&shop.ID, &shop.UserID, &shop.Name,
		&address, &phone, &logoURL, &opening, &closing,
		&duration, &theme, &shop.CreatedAt, &shop.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	shop.Address = stringPtr(address)
	shop.Phone = stringPtr(phone)
	shop.LogoURL = stringPtr(logoURL)
	shop.OpeningTime = stringPtr(opening)
	shop.ClosingTime = stringPtr(closing)
	if duration.Valid {
		d := int(duration.Int64)
		shop.AppointmentDurationMinutes = &d
	}

	shop.Theme = model.DefaultTheme()
	if len(theme) > 0 && string(theme) != "null" {
		if err := json.Unmarshal(theme, &shop.Theme); err != nil {
			return nil, fmt.Errorf("failed to decode theme: %w", err)
		}
	}

	return shop, nil
}

// nullString は空文字列とnilをNULLとして扱う。
func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// compile-time interface check
var _ BarbershopRepository = (*PostgresBarbershopRepo)(nil)
