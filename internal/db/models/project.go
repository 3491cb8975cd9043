package models

import (
	"time"

	"gorm.io/gorm"
)

type Project struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"uniqueIndex;size:255;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (p Project) TableName() string {
	return "projects"
}

func FindProjectByID(db *gorm.DB, id uint) (Project, error) {
	var project Project
	err := db.First(&project, id).Error
	return project, err
}

func FindProjectByName(db *gorm.DB, name string) (Project, error) {
	var project Project
	err := db.Where(&Project{Name: name}).First(&project).Error
	return project, err
}

// FirstOrCreateProject returns the project called name, creating it on first reference.
func FirstOrCreateProject(db *gorm.DB, name string) (Project, error) {
	var project Project
	err := db.Where(Project{Name: name}).FirstOrCreate(&project).Error
	return project, err
}

func ListProjects(db *gorm.DB) ([]Project, error) {
	var projects []Project
	err := db.Order("id asc").Find(&projects).Error
	return projects, err
}
