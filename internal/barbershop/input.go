package barbershop

import (
	"encoding/json"
	"strings"

	"github.com/hitoshi/barberadmin/internal/model"
)

// ThemeInput はフォームから受け取るテーマ設定。指定されなかったキーはnil。
// 色の空文字列は未指定として扱い、logo_mobile_urlの空文字列はロゴの解除として扱う。
type ThemeInput struct {
	PrimaryColor   *string `json:"primary_color"`
	SecondaryColor *string `json:"secondary_color"`
	AccentColor    *string `json:"accent_color"`
	LogoMobileURL  *string `json:"logo_mobile_url"`
}

// CreateInput は店舗作成フォームの入力。
type CreateInput struct {
	Name                       string      `json:"name"`
	Address                    *string     `json:"address"`
	Phone                      *string     `json:"phone"`
	LogoURL                    *string     `json:"logo_url"`
	OpeningTime                *string     `json:"opening_time"`
	ClosingTime                *string     `json:"closing_time"`
	AppointmentDurationMinutes *int        `json:"appointment_duration_minutes"`
	Theme                      *ThemeInput `json:"theme"`

	// UserID は受け付けるが使用しない。所有者は常に呼び出し元になる。
	UserID json.RawMessage `json:"user_id,omitempty"`
}

// UpdateInput は店舗更新フォームの入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name                       *string     `json:"name"`
	Address                    *string     `json:"address"`
	Phone                      *string     `json:"phone"`
	LogoURL                    *string     `json:"logo_url"`
	OpeningTime                *string     `json:"opening_time"`
	ClosingTime                *string     `json:"closing_time"`
	AppointmentDurationMinutes *int        `json:"appointment_duration_minutes"`
	Theme                      *ThemeInput `json:"theme"`

	// 以下はストア管理の項目で、受け取っても破棄する。
	ID        json.RawMessage `json:"id,omitempty"`
	UserID    json.RawMessage `json:"user_id,omitempty"`
	CreatedAt json.RawMessage `json:"created_at,omitempty"`
	UpdatedAt json.RawMessage `json:"updated_at,omitempty"`
}

// strippedFields は破棄したストア管理項目の名前を返す。
func (in *UpdateInput) strippedFields() []string {
	var names []string
	if len(in.ID) > 0 {
		names = append(names, "id")
	}
	if len(in.UserID) > 0 {
		names = append(names, "user_id")
	}
	if len(in.CreatedAt) > 0 {
		names = append(names, "created_at")
	}
	if len(in.UpdatedAt) > 0 {
		names = append(names, "updated_at")
	}
	in.ID, in.UserID, in.CreatedAt, in.UpdatedAt = nil, nil, nil, nil
	return names
}

// shopForm は検証対象の正規化済みフォーム。
// nameのみポインタで、nilは未指定、空文字列は違反となる。
type shopForm struct {
	Name                       *string   `json:"name" validate:"omitnil,min=1,max=120"`
	Address                    string    `json:"address" validate:"omitempty,max=255"`
	Phone                      string    `json:"phone" validate:"omitempty,max=40"`
	LogoURL                    string    `json:"logo_url" validate:"omitempty,url,max=2048"`
	OpeningTime                string    `json:"opening_time" validate:"omitempty,hhmm"`
	ClosingTime                string    `json:"closing_time" validate:"omitempty,hhmm"`
	AppointmentDurationMinutes *int      `json:"appointment_duration_minutes" validate:"omitnil,gt=0,lte=1440"`
	Theme                      themeForm `json:"theme"`
}

type themeForm struct {
	PrimaryColor   string `json:"primary_color" validate:"omitempty,color_hex"`
	SecondaryColor string `json:"secondary_color" validate:"omitempty,color_hex"`
	AccentColor    string `json:"accent_color" validate:"omitempty,color_hex"`
	LogoMobileURL  string `json:"logo_mobile_url" validate:"omitempty,url,max=2048"`
}

// textCleaner はプレーンテキスト項目の整形を行う。
type textCleaner interface {
	Sanitize(raw string) string
}

// normalizeText はテキスト項目をサニタイズする。nilはnilのまま返す。
func normalizeText(s textCleaner, v *string) *string {
	if v == nil {
		return nil
	}
	cleaned := s.Sanitize(*v)
	return &cleaned
}

// normalizeTrim は前後の空白を除去する。nilはnilのまま返す。
func normalizeTrim(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	return &trimmed
}

// normalize はテーマ入力を整形する。空の色指定は未指定として扱う。
func (t *ThemeInput) normalize() *ThemeInput {
	if t == nil {
		return nil
	}
	color := func(v *string) *string {
		v = normalizeTrim(v)
		if v == nil || *v == "" {
			return nil
		}
		return v
	}
	return &ThemeInput{
		PrimaryColor:   color(t.PrimaryColor),
		SecondaryColor: color(t.SecondaryColor),
		AccentColor:    color(t.AccentColor),
		LogoMobileURL:  normalizeTrim(t.LogoMobileURL),
	}
}

// patch はテーマ入力をモデルのパッチに変換する。
func (t *ThemeInput) patch() *model.ThemePatch {
	if t == nil {
		return nil
	}
	p := &model.ThemePatch{
		PrimaryColor:   t.PrimaryColor,
		SecondaryColor: t.SecondaryColor,
		AccentColor:    t.AccentColor,
		LogoMobileURL:  t.LogoMobileURL,
	}
	if p.PrimaryColor == nil && p.SecondaryColor == nil && p.AccentColor == nil && p.LogoMobileURL == nil {
		return nil
	}
	return p
}

func (t *ThemeInput) form() themeForm {
	if t == nil {
		return themeForm{}
	}
	return themeForm{
		PrimaryColor:   deref(t.PrimaryColor),
		SecondaryColor: deref(t.SecondaryColor),
		AccentColor:    deref(t.AccentColor),
		LogoMobileURL:  deref(t.LogoMobileURL),
	}
}

// normalize はテキストをサニタイズし、前後の空白を除去した入力を返す。
func (in CreateInput) normalize(s textCleaner) CreateInput {
	in.Name = s.Sanitize(in.Name)
	in.Address = normalizeText(s, in.Address)
	in.Phone = normalizeText(s, in.Phone)
	in.LogoURL = normalizeTrim(in.LogoURL)
	in.OpeningTime = normalizeTrim(in.OpeningTime)
	in.ClosingTime = normalizeTrim(in.ClosingTime)
	in.Theme = in.Theme.normalize()
	return in
}

func (in CreateInput) form() shopForm {
	name := in.Name
	return shopForm{
		Name:                       &name,
		Address:                    deref(in.Address),
		Phone:                      deref(in.Phone),
		LogoURL:                    deref(in.LogoURL),
		OpeningTime:                deref(in.OpeningTime),
		ClosingTime:                deref(in.ClosingTime),
		AppointmentDurationMinutes: in.AppointmentDurationMinutes,
		Theme:                      in.Theme.form(),
	}
}

// normalize はテキストをサニタイズし、前後の空白を除去した入力を返す。
func (in UpdateInput) normalize(s textCleaner) UpdateInput {
	in.Name = normalizeText(s, in.Name)
	in.Address = normalizeText(s, in.Address)
	in.Phone = normalizeText(s, in.Phone)
	in.LogoURL = normalizeTrim(in.LogoURL)
	in.OpeningTime = normalizeTrim(in.OpeningTime)
	in.ClosingTime = normalizeTrim(in.ClosingTime)
	in.Theme = in.Theme.normalize()
	return in
}

func (in UpdateInput) form() shopForm {
	return shopForm{
		Name:                       in.Name,
		Address:                    deref(in.Address),
		Phone:                      deref(in.Phone),
		LogoURL:                    deref(in.LogoURL),
		OpeningTime:                deref(in.OpeningTime),
		ClosingTime:                deref(in.ClosingTime),
		AppointmentDurationMinutes: in.AppointmentDurationMinutes,
		Theme:                      in.Theme.form(),
	}
}

// patch は更新入力をリポジトリ用のパッチに変換する。
// ストア管理項目はこの型に存在しないため、ここで確実に落ちる。
func (in UpdateInput) patch() model.BarbershopPatch {
	return model.BarbershopPatch{
		Name:                       in.Name,
		Address:                    in.Address,
		Phone:                      in.Phone,
		LogoURL:                    in.LogoURL,
		OpeningTime:                in.OpeningTime,
		ClosingTime:                in.ClosingTime,
		AppointmentDurationMinutes: in.AppointmentDurationMinutes,
		Theme:                      in.Theme.patch(),
	}
}

type urlField struct {
	field string
	url   string
}

// urlsOf は安全性を検証すべきURL項目をフィールド名付きで返す。
func urlsOf(logoURL *string, theme *ThemeInput) []urlField {
	var urls []urlField
	if v := deref(logoURL); v != "" {
		urls = append(urls, urlField{field: "logo_url", url: v})
	}
	if theme != nil {
		if v := deref(theme.LogoMobileURL); v != "" {
			urls = append(urls, urlField{field: "theme.logo_mobile_url", url: v})
		}
	}
	return urls
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
