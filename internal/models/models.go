package models

import (
	"time"

	"gorm.io/gorm"
)

// Project is a tenant that owns an API key and a set of assigned models.
type Project struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"uniqueIndex;not null" json:"name"`
	Description string         `json:"description"`
	APIKey      string         `gorm:"uniqueIndex;not null" json:"api_key"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	Models      []ProjectModel `gorm:"foreignKey:ProjectID" json:"models,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// ProjectModel assigns one engine model to a project.
type ProjectModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;index" json:"project_id"`
	ModelName string    `gorm:"not null" json:"model_name"`
	CreatedAt time.Time `json:"created_at"`
}

// HasModel reports whether modelName is assigned to the project.
func (p *Project) HasModel(modelName string) bool {
	for _, pm := range p.Models {
		if pm.ModelName == modelName {
			return true
		}
	}
	return false
}

// GenerateRequest is the canonical generation request forwarded to the engine.
// Images are base64-encoded attachment payloads, in arrival order; they are
// forwarded opaquely and only meaningful for vision-capable models.
type GenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	Images []string `json:"images,omitempty"`
}

// GenerateRecord is one NDJSON record emitted by the engine. A stream is a
// sequence of records terminated by Done=true or by the transport closing.
type GenerateRecord struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// ErrorResponse is the JSON error envelope returned by every handler.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse wraps operations that return no entity.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// LoginRequest carries admin credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued admin token.
type LoginResponse struct {
	Token string `json:"token"`
}

// CreateProjectRequest creates or updates a project.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AssignModelRequest assigns a model to a project.
type AssignModelRequest struct {
	ModelName string `json:"model_name"`
}
