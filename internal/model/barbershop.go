package model

import "time"

// Theme は店舗のテーマカラー設定。店舗レコードに内包される値オブジェクト。
type Theme struct {
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	AccentColor    string `json:"accent_color"`
	LogoMobileURL  string `json:"logo_mobile_url"`
}

// DefaultTheme はテーマ未指定時に適用する固定パレットを返す。
func DefaultTheme() Theme {
	return Theme{
		PrimaryColor:   "#0A84FF",
		SecondaryColor: "#6CB2FF",
		AccentColor:    "#FF9500",
		LogoMobileURL:  "",
	}
}

// ThemePatch はテーマの部分更新。nilのフィールドは変更しない。
type ThemePatch struct {
	PrimaryColor   *string `json:"primary_color,omitempty"`
	SecondaryColor *string `json:"secondary_color,omitempty"`
	AccentColor    *string `json:"accent_color,omitempty"`
	LogoMobileURL  *string `json:"logo_mobile_url,omitempty"`
}

// Merge はbaseにパッチのキーだけを上書きしたテーマを返す。
// 指定されなかったキーはbaseの値を維持する。
func (p *ThemePatch) Merge(base Theme) Theme {
	if p == nil {
		return base
	}
	if p.PrimaryColor != nil {
		base.PrimaryColor = *p.PrimaryColor
	}
	if p.SecondaryColor != nil {
		base.SecondaryColor = *p.SecondaryColor
	}
	if p.AccentColor != nil {
		base.AccentColor = *p.AccentColor
	}
	if p.LogoMobileURL != nil {
		base.LogoMobileURL = *p.LogoMobileURL
	}
	return base
}

// Barbershop は管理対象の店舗レコード。
// UserIDは作成者（所有者）で、作成後は変更されない。
type Barbershop struct {
	ID                         string    `json:"id"`
	UserID                     string    `json:"user_id"`
	Name                       string    `json:"name"`
	Address                    *string   `json:"address"`
	Phone                      *string   `json:"phone"`
	LogoURL                    *string   `json:"logo_url"`
	OpeningTime                *string   `json:"opening_time"`
	ClosingTime                *string   `json:"closing_time"`
	AppointmentDurationMinutes *int      `json:"appointment_duration_minutes"`
	Theme                      Theme     `json:"theme"`
	CreatedAt                  time.Time `json:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

// BarbershopSummary は一覧表示用の店舗情報。
type BarbershopSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   *string   `json:"address"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// BarbershopPatch は店舗の部分更新内容。nilのフィールドは変更しない。
// 所有者やタイムスタンプは含まない。
type BarbershopPatch struct {
	Name                       *string
	Address                    *string
	Phone                      *string
	LogoURL                    *string
	OpeningTime                *string
	ClosingTime                *string
	AppointmentDurationMinutes *int
	Theme                      *ThemePatch
}

// Empty はパッチに変更が含まれないかを返す。
func (p BarbershopPatch) Empty() bool {
	return p.Name == nil && p.Address == nil && p.Phone == nil && p.LogoURL == nil &&
		p.OpeningTime == nil && p.ClosingTime == nil &&
		p.AppointmentDurationMinutes == nil && p.Theme == nil
}
