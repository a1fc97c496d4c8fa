package model

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	nameMinLen        = 2
	nameMaxLen        = 120
	passwordMinLen    = 8
	passwordMaxLen    = 128
	taskTitleMaxLen   = 200
	taskDescMaxLen    = 2000
	fieldErrSeparator = ", "
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type CreateTaskRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      *TaskStatus `json:"status"`
}

type UpdateTaskRequest struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	Status      *TaskStatus `json:"status"`
}

// ValidationError lists every field problem found in a request body.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, fieldErrSeparator)
}

type problems []string

func (p *problems) add(msg string) {
	*p = append(*p, msg)
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return &ValidationError{Problems: p}
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Normalize trims and lowercases fields in place, then validates.
func (r *RegisterRequest) Normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)

	var p problems
	switch n := utf8.RuneCountInString(r.Name); {
	case n == 0:
		p.add(`"name" is required`)
	case n < nameMinLen:
		p.add(`"name" length must be at least 2 characters long`)
	case n > nameMaxLen:
		p.add(`"name" length must be less than or equal to 120 characters long`)
	}
	validateEmail(&p, r.Email)
	validatePassword(&p, r.Password)
	return p.err()
}

func (r *LoginRequest) Normalize() error {
	r.Email = NormalizeEmail(r.Email)

	var p problems
	validateEmail(&p, r.Email)
	validatePassword(&p, r.Password)
	return p.err()
}

func (r *RefreshRequest) Normalize() error {
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
	if r.RefreshToken == "" {
		return &ValidationError{Problems: []string{`"refreshToken" is required`}}
	}
	return nil
}

func (r *CreateTaskRequest) Normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)

	var p problems
	if r.Title == "" {
		p.add(`"title" is required`)
	} else if utf8.RuneCountInString(r.Title) > taskTitleMaxLen {
		p.add(`"title" length must be less than or equal to 200 characters long`)
	}
	if utf8.RuneCountInString(r.Description) > taskDescMaxLen {
		p.add(`"description" length must be less than or equal to 2000 characters long`)
	}
	if r.Status != nil && !r.Status.Valid() {
		p.add(`"status" must be one of [pending, in_progress, done]`)
	}
	return p.err()
}

func (r *UpdateTaskRequest) Normalize() error {
	var p problems
	if r.Title == nil && r.Description == nil && r.Status == nil {
		p.add(`"value" must have at least 1 key`)
		return p.err()
	}
	if r.Title != nil {
		trimmed := strings.TrimSpace(*r.Title)
		r.Title = &trimmed
		if trimmed == "" {
			p.add(`"title" is not allowed to be empty`)
		} else if utf8.RuneCountInString(trimmed) > taskTitleMaxLen {
			p.add(`"title" length must be less than or equal to 200 characters long`)
		}
	}
	if r.Description != nil {
		trimmed := strings.TrimSpace(*r.Description)
		r.Description = &trimmed
		if utf8.RuneCountInString(trimmed) > taskDescMaxLen {
			p.add(`"description" length must be less than or equal to 2000 characters long`)
		}
	}
	if r.Status != nil && !r.Status.Valid() {
		p.add(`"status" must be one of [pending, in_progress, done]`)
	}
	return p.err()
}

func validateEmail(p *problems, email string) {
	if email == "" {
		p.add(`"email" is required`)
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		p.add(`"email" must be a valid email`)
	}
}

func validatePassword(p *problems, password string) {
	switch n := utf8.RuneCountInString(password); {
	case n == 0:
		p.add(`"password" is required`)
	case n < passwordMinLen:
		p.add(`"password" length must be at least 8 characters long`)
	case n > passwordMaxLen:
		p.add(`"password" length must be less than or equal to 128 characters long`)
	}
}
