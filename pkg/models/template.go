package models

import "time"

// WorkflowTemplate is a reusable workflow blueprint. TemplateData holds a
// full workflow definition minus owner and id; instantiation merges caller
// overrides over it field by field.
type WorkflowTemplate struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"     validate:"required,min=3"`
	Description  string         `json:"description"`
	Category     string         `json:"category"`
	TemplateData map[string]any `json:"template_data" validate:"required"`
	UsageCount   int            `json:"usage_count"`
	IsPublic     bool           `json:"is_public"`
	Owner        string         `json:"owner"    validate:"required"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
