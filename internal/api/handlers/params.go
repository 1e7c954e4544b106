// params.go — привязка path-параметров к типизированным аргументам handlers.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/ABASgroup/AirBIM/internal/api/errors"
)

// FileIDHandlerFunc — handler с разобранным параметром file_id.
type FileIDHandlerFunc func(w http.ResponseWriter, r *http.Request, fileID openapi_types.UUID)

// WithFileID разбирает path-параметр {file_id} как UUID и вызывает handler.
// Некорректный идентификатор — 400 VALIDATION_ERROR.
func WithFileID(next FileIDHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fileID openapi_types.UUID

		err := runtime.BindStyledParameterWithOptions("simple", "file_id", chi.URLParam(r, "file_id"), &fileID,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Invalid format for parameter file_id: %s", err.Error()))
			return
		}

		next(w, r, fileID)
	}
}
