package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// modelValidate checks create requests and metric samples.
var modelValidate *validator.Validate

func init() {
	modelValidate = validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names
	modelValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// validationError flattens validator errors into one readable message
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// CreateDeploymentRequest is the input of a new deployment
type CreateDeploymentRequest struct {
	VersionID       string           `json:"versionId" validate:"required" doc:"Model version to deploy"`
	Environment     Environment      `json:"environment" validate:"required,oneof=staging production canary" enum:"staging,production,canary"`
	Strategy        Strategy         `json:"strategy" validate:"required,oneof=rolling canary blue_green" enum:"rolling,canary,blue_green"`
	Config          DeploymentConfig `json:"config"`
	SLOTargets      SLOTargets       `json:"sloTargets,omitempty" required:"false"`
	DriftThresholds DriftThresholds  `json:"driftThresholds,omitempty" required:"false"`
}

// Validate checks the required configuration of the request
func (r *CreateDeploymentRequest) Validate() error {
	if err := modelValidate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}

// Validate checks the ranges of a metrics sample
func (m *DeploymentMetrics) Validate() error {
	if err := modelValidate.Struct(m); err != nil {
		return validationError(err)
	}
	return nil
}

// CreateVersionRequest registers a model version in the version catalog
type CreateVersionRequest struct {
	ID          string `json:"id,omitempty" doc:"Version id; generated when empty"`
	ModelID     string `json:"modelId" validate:"required"`
	Version     string `json:"version" validate:"required"`
	ArtifactURI string `json:"artifactUri,omitempty"`
}

// Validate checks the required fields of the request
func (r *CreateVersionRequest) Validate() error {
	if err := modelValidate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}
