package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewID returns a fresh random identifier for a row or a collection.
func NewID() string {
	return uuid.NewString()
}

func assignID(id *string) {
	if *id == "" {
		*id = NewID()
	}
}

// BeforeCreate hooks fill in primary keys that callers left empty.

func (r *Repository) BeforeCreate(*gorm.DB) error { assignID(&r.ID); return nil }
func (p *Project) BeforeCreate(*gorm.DB) error    { assignID(&p.ID); return nil }
func (p *Plan) BeforeCreate(*gorm.DB) error       { assignID(&p.ID); return nil }
func (p *Patch) BeforeCreate(*gorm.DB) error      { assignID(&p.ID); return nil }
func (s *Source) BeforeCreate(*gorm.DB) error     { assignID(&s.ID); return nil }
func (b *Build) BeforeCreate(*gorm.DB) error      { assignID(&b.ID); return nil }
func (j *Job) BeforeCreate(*gorm.DB) error        { assignID(&j.ID); return nil }
func (j *JobPlan) BeforeCreate(*gorm.DB) error    { assignID(&j.ID); return nil }
