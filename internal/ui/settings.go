// Пакет ui — HTML-страницы AirBIM (templ-компоненты) и настройки оформления.
package ui

import "github.com/ABASgroup/AirBIM/internal/config"

// Тема оформления: набор CSS-цветов страницы.
type Theme struct {
	Name       string
	Background string
	Surface    string
	Text       string
	Primary    string
	Border     string
}

// themes — поддерживаемые темы. Неизвестное имя заменяется на default.
var themes = map[string]Theme{
	"default": {
		Name:       "default",
		Background: "#f5f6f8",
		Surface:    "#ffffff",
		Text:       "#1f2933",
		Primary:    "#2c6ecb",
		Border:     "#d9dee5",
	},
	"dark": {
		Name:       "dark",
		Background: "#15191e",
		Surface:    "#1f252c",
		Text:       "#e4e7eb",
		Primary:    "#5b9bf0",
		Border:     "#323a44",
	},
}

// SiteSettings — снимок настроек оформления, общий для всех страниц.
// Строится один раз при старте и передаётся компонентам явно.
type SiteSettings struct {
	AppName             string
	AppLogo             string
	OrganizationName    string
	OrganizationWebsite string
	Theme               Theme
}

// NewSiteSettings строит SiteSettings из конфигурации.
func NewSiteSettings(cfg *config.Config) SiteSettings {
	return SiteSettings{
		AppName:             cfg.AppName,
		AppLogo:             cfg.AppLogo,
		OrganizationName:    cfg.OrganizationName,
		OrganizationWebsite: cfg.OrganizationWebsite,
		Theme:               LookupTheme(cfg.Theme),
	}
}

// LookupTheme возвращает тему по имени или тему по умолчанию.
func LookupTheme(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return themes["default"]
}
