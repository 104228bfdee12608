package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/luxeledger/inventory-backend/pkg/db/models"
	"github.com/luxeledger/inventory-backend/pkg/enums"
)

// ActorDTO is the transport shape of an employee or customer, without credentials.
type ActorDTO struct {
	ID          uuid.UUID       `json:"id"`
	Email       string          `json:"email"`
	Kind        enums.ActorKind `json:"kind"`
	Name        string          `json:"name,omitempty"`
	LastLoginAt *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CreateEmployeeDTO holds the data required by the repo to persist a new employee.
type CreateEmployeeDTO struct {
	Email        string
	PasswordHash string
	Name         string
	IsActive     *bool
}

// CreateCustomerDTO is written once a registration flow has been verified.
type CreateCustomerDTO struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	VerifiedAt   time.Time
}

func FromEmployee(e *models.Employee) *ActorDTO {
	if e == nil {
		return nil
	}
	return &ActorDTO{
		ID:          e.ID,
		Email:       e.Email,
		Kind:        enums.ActorKindEmployee,
		Name:        e.Name,
		LastLoginAt: e.LastLoginAt,
		CreatedAt:   e.CreatedAt,
	}
}

func FromCustomer(c *models.Customer) *ActorDTO {
	if c == nil {
		return nil
	}
	return &ActorDTO{
		ID:        c.ID,
		Email:     c.Email,
		Kind:      enums.ActorKindCustomer,
		CreatedAt: c.CreatedAt,
	}
}

func (c CreateEmployeeDTO) ToModel() *models.Employee {
	isActive := true
	if c.IsActive != nil {
		isActive = *c.IsActive
	}
	return &models.Employee{
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		Name:         c.Name,
		IsActive:     isActive,
	}
}

func (c CreateCustomerDTO) ToModel() *models.Customer {
	return &models.Customer{
		ID:           c.ID,
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		VerifiedAt:   c.VerifiedAt.UTC(),
	}
}
