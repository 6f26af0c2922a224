package http

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	dlerrors "github.com/devlens/devlens/internal/errors"
	"github.com/devlens/devlens/pkg/types"
)

// validate is shared by all request types.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// AnalyzeRequest is the JSON body of POST /v1/analyze.
type AnalyzeRequest struct {
	SourceFile string           `json:"sourceFile" validate:"max=512"`
	Rows       []types.RawEvent `json:"rows" validate:"required"`
	Save       bool             `json:"save"`
}

// AnalyzeResponse carries the analysis and, when saved, its id.
type AnalyzeResponse struct {
	ID        string `json:"id,omitempty"`
	RequestID string `json:"request_id"`
	*types.Analysis
}

// CreateAnalysisRequest stores a precomputed analysis.
type CreateAnalysisRequest struct {
	SourceFile  string          `json:"sourceFile" validate:"required,notblank,max=512"`
	RecordCount *int            `json:"recordCount" validate:"required,gte=0"`
	GeneratedAt string          `json:"generatedAt" validate:"required"`
	Analysis    *types.Analysis `json:"analysis" validate:"required"`
}

// CreateAnalysisResponse returns the new id.
type CreateAnalysisResponse struct {
	ID string `json:"id"`
}

// RenameRequest is the body of PATCH /v1/analyses/{id}.
type RenameRequest struct {
	SourceFile string `json:"sourceFile" validate:"max=512"`
}

// AnalysisDetail is a stored record with its decoded results.
type AnalysisDetail struct {
	*types.AnalysisRecord
	Analysis *types.Analysis `json:"analysis"`
}

// ListResponse is the body of GET /v1/analyses.
type ListResponse struct {
	Analyses []*types.AnalysisRecord `json:"analyses"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
}

// DeleteResponse is the body of DELETE /v1/analyses/{id}.
type DeleteResponse struct {
	Success bool `json:"success"`
}

// validateRequest runs struct validation and converts failures into a
// VALIDATION:INVALID_REQUEST error naming the offending fields.
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
	} else {
		fields = append(fields, err.Error())
	}
	return dlerrors.NewValidationError(dlerrors.CodeInvalidRequest,
		"invalid request: "+strings.Join(fields, ", "))
}

// parseGeneratedAt accepts RFC3339 timestamps with or without fractions.
func parseGeneratedAt(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, dlerrors.NewValidationError(dlerrors.CodeInvalidRequest,
			fmt.Sprintf("generatedAt %q is not an RFC3339 timestamp", s))
	}
	return t.UTC(), nil
}
