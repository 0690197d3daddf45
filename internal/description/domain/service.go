package domain

import (
	"context"
	"errors"
)

var (
	ErrNoProductsSelected = errors.New("no_products_selected")
	ErrInvalidResponse    = errors.New("invalid_generator_response")
)

// Result is the generated copy for one product.
type Result struct {
	Description     string `json:"description"`
	MetaTitle       string `json:"meta_title"`
	MetaDescription string `json:"meta_description"`
}

type BulkRequest struct {
	ProductIDs []string `json:"product_ids" form:"product_ids"`
}

// BulkResponse reports the product handled in this step and the ids still to do.
type BulkResponse struct {
	ProductID       string   `json:"product_id"`
	ProductName     string   `json:"product_name"`
	Description     string   `json:"description"`
	MetaTitle       string   `json:"meta_title"`
	MetaDescription string   `json:"meta_description"`
	Remaining       []string `json:"remaining"`
}

// BulkError carries the product a bulk step failed on.
type BulkError struct {
	ProductID   string
	ProductName string
	Err         error
}

func (e *BulkError) Error() string {
	return e.Err.Error()
}

func (e *BulkError) Unwrap() error {
	return e.Err
}

// Generator produces raw model output for a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

type Service interface {
	// Generate returns fresh copy for a product without saving it. The
	// reference is a numeric id or a slug.
	Generate(ctx context.Context, productRef string) (Result, error)
	// GenerateBulk generates and saves copy for the first product of the
	// request and returns the rest for the caller to continue with.
	GenerateBulk(ctx context.Context, req BulkRequest) (BulkResponse, error)
}
