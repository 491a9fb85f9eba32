package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bz888/llamagate/internal/models"
)

// Config holds the postgres connection settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (c Config) dsn() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

// Connect opens the database, applies pool settings and runs migrations. The
// returned handle is injected into the stores rather than held as a global.
func Connect(cfg Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.Project{}, &models.ProjectModel{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// ProjectStore is the GORM-backed registry of projects and their model
// assignments.
type ProjectStore struct {
	db *gorm.DB
}

func NewProjectStore(db *gorm.DB) *ProjectStore {
	return &ProjectStore{db: db}
}

func (s *ProjectStore) ListProjects() ([]models.Project, error) {
	var projects []models.Project
	if err := s.db.Preload("Models").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *ProjectStore) GetProject(id string) (*models.Project, error) {
	var project models.Project
	if err := s.db.Preload("Models").First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}

// ProjectByAPIKey resolves an API key to its project with assignments
// loaded. Unknown keys return (nil, nil).
func (s *ProjectStore) ProjectByAPIKey(key string) (*models.Project, error) {
	var project models.Project
	if err := s.db.Preload("Models").Where("api_key = ?", key).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}

func (s *ProjectStore) CreateProject(project *models.Project) error {
	return s.db.Create(project).Error
}

func (s *ProjectStore) SaveProject(project *models.Project) error {
	return s.db.Save(project).Error
}

// DeleteProject soft deletes the project.
func (s *ProjectStore) DeleteProject(project *models.Project) error {
	return s.db.Delete(project).Error
}

func (s *ProjectStore) ProjectModels(projectID string) ([]models.ProjectModel, error) {
	var assignments []models.ProjectModel
	if err := s.db.Where("project_id = ?", projectID).Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (s *ProjectStore) ModelAssignment(projectID, assignmentID string) (*models.ProjectModel, error) {
	var assignment models.ProjectModel
	err := s.db.Where("id = ? AND project_id = ?", assignmentID, projectID).First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &assignment, nil
}

func (s *ProjectStore) AssignmentExists(projectID uint, modelName string) (bool, error) {
	var assignment models.ProjectModel
	err := s.db.Where("project_id = ? AND model_name = ?", projectID, modelName).First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *ProjectStore) CreateAssignment(assignment *models.ProjectModel) error {
	return s.db.Create(assignment).Error
}

func (s *ProjectStore) DeleteAssignment(assignment *models.ProjectModel) error {
	return s.db.Delete(assignment).Error
}
