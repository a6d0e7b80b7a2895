package model

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jwalitptl/clinic-api/pkg/validator"
)

const DefaultDrugImage = "default.jpg"

type Drug struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name      string             `json:"name" bson:"name" validate:"required,max=100"`
	Image     string             `json:"image" bson:"image"`
	Category  string             `json:"category" bson:"category" validate:"required,max=100"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// Normalize lower-cases the searchable fields and fills the default image.
func (d *Drug) Normalize() {
	d.Name = strings.ToLower(strings.TrimSpace(d.Name))
	d.Category = strings.ToLower(strings.TrimSpace(d.Category))
	if d.Image == "" {
		d.Image = DefaultDrugImage
	}
}

func (d *Drug) Validate() error {
	d.Normalize()
	return validator.Validate(d)
}

type DrugFilter struct {
	Name     string `form:"name"`
	Category string `form:"category"`
	Pagination
}

type UpdateDrugRequest struct {
	Name     *string `json:"name"`
	Image    *string `json:"image"`
	Category *string `json:"category"`
}
