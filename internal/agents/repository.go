package agents

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repository interface {
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgentByEmail(ctx context.Context, email string) (*Agent, error)
	GetAgentByID(ctx context.Context, id string) (*Agent, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateAgent(ctx context.Context, agent *Agent) error {
	return r.db.WithContext(ctx).Create(agent).Error
}

func (r *repository) GetAgentByEmail(ctx context.Context, email string) (*Agent, error) {
	var agent Agent
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&agent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (r *repository) GetAgentByID(ctx context.Context, id string) (*Agent, error) {
	var agent Agent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&agent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (r *repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Agent{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}
