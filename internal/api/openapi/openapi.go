// Пакет openapi — встроенный OpenAPI-контракт AirBIM.
// Документ загружается и валидируется через kin-openapi при старте
// и отдаётся клиентам в формате JSON.
package openapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var specYAML []byte

var (
	loadOnce sync.Once
	spec     *openapi3.T
	specErr  error
)

// GetSwagger возвращает разобранный и провалидированный OpenAPI-документ.
func GetSwagger() (*openapi3.T, error) {
	loadOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(specYAML)
		if err != nil {
			specErr = fmt.Errorf("разбор OpenAPI-документа: %w", err)
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			specErr = fmt.Errorf("валидация OpenAPI-документа: %w", err)
			return
		}
		spec = doc
	})
	return spec, specErr
}

// Handler возвращает обработчик GET /api/bim/openapi.json.
// JSON сериализуется один раз при создании обработчика.
func Handler() (http.Handler, error) {
	doc, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("сериализация OpenAPI-документа: %w", err)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}), nil
}
