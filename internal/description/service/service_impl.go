package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/storefront/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/storefront/internal/catalog/domain"
	"github.com/smallbiznis/storefront/internal/clock"
	descriptiondomain "github.com/smallbiznis/storefront/internal/description/domain"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Variants without option text are skipped, so read more than the prompt uses.
const variantScanLimit = 50

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	CatalogRepo catalogdomain.Repository
	Generator   descriptiondomain.Generator
	AuditSvc    auditdomain.Service `optional:"true"`
	Clock       clock.Clock         `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	catalogRepo catalogdomain.Repository
	generator   descriptiondomain.Generator
	auditSvc    auditdomain.Service
	clock       clock.Clock
}

func NewService(p Params) descriptiondomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("description.service"),
		catalogRepo: p.CatalogRepo,
		generator:   p.Generator,
		auditSvc:    p.AuditSvc,
		clock:       clk,
	}
}

func (s *Service) Generate(ctx context.Context, productRef string) (descriptiondomain.Result, error) {
	product, err := s.findProduct(ctx, productRef)
	if err != nil {
		return descriptiondomain.Result{}, err
	}
	return s.generate(ctx, product)
}

func (s *Service) GenerateBulk(ctx context.Context, req descriptiondomain.BulkRequest) (descriptiondomain.BulkResponse, error) {
	ids := make([]string, 0, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return descriptiondomain.BulkResponse{}, descriptiondomain.ErrNoProductsSelected
	}

	current, remaining := ids[0], ids[1:]
	product, err := s.findProduct(ctx, current)
	if err != nil {
		return descriptiondomain.BulkResponse{}, &descriptiondomain.BulkError{ProductID: current, Err: err}
	}

	result, err := s.generate(ctx, product)
	if err != nil {
		return descriptiondomain.BulkResponse{}, &descriptiondomain.BulkError{
			ProductID:   product.ID.String(),
			ProductName: product.Name,
			Err:         err,
		}
	}

	updated, err := s.catalogRepo.UpdateProductDescription(ctx, s.db, product.ID, catalogdomain.DescriptionUpdate{
		Description:     result.Description,
		MetaTitle:       result.MetaTitle,
		MetaDescription: result.MetaDescription,
	}, s.clock.Now())
	if err == nil && !updated {
		err = catalogdomain.ErrProductNotFound
	}
	if err != nil {
		return descriptiondomain.BulkResponse{}, &descriptiondomain.BulkError{
			ProductID:   product.ID.String(),
			ProductName: product.Name,
			Err:         err,
		}
	}
	s.audit(ctx, product)

	return descriptiondomain.BulkResponse{
		ProductID:       product.ID.String(),
		ProductName:     product.Name,
		Description:     result.Description,
		MetaTitle:       result.MetaTitle,
		MetaDescription: result.MetaDescription,
		Remaining:       remaining,
	}, nil
}

func (s *Service) generate(ctx context.Context, product *catalogdomain.Product) (descriptiondomain.Result, error) {
	log := obslogger.WithContext(ctx, s.log).With(zap.String("product_id", product.ID.String()))

	variants, err := s.catalogRepo.ListVariantsByProduct(ctx, s.db, product.ID, variantScanLimit)
	if err != nil {
		return descriptiondomain.Result{}, err
	}

	raw, err := s.generator.GenerateContent(ctx, BuildPrompt(*product, variants))
	if err != nil {
		log.Warn("description generation failed", zap.Error(err))
		return descriptiondomain.Result{}, err
	}

	result, err := parseResult(raw)
	if err != nil {
		log.Warn("description response unusable", zap.Error(err))
		return descriptiondomain.Result{}, err
	}
	log.Info("description generated",
		zap.Int("description_length", len(result.Description)),
		zap.Int("meta_title_length", len(result.MetaTitle)),
	)
	return result, nil
}

func parseResult(raw string) (descriptiondomain.Result, error) {
	var parsed struct {
		Description     string `json:"description"`
		MetaTitle       string `json:"meta_title"`
		MetaDescription string `json:"meta_description"`
	}
	if err := json.Unmarshal([]byte(StripFences(raw)), &parsed); err != nil {
		return descriptiondomain.Result{}, fmt.Errorf("%w: %v", descriptiondomain.ErrInvalidResponse, err)
	}
	return descriptiondomain.Result{
		Description:     strings.TrimSpace(parsed.Description),
		MetaTitle:       Truncate(strings.TrimSpace(parsed.MetaTitle), maxMetaTitleRunes),
		MetaDescription: Truncate(strings.TrimSpace(parsed.MetaDescription), maxMetaDescriptionRunes),
	}, nil
}

// findProduct resolves a numeric id first and falls back to the slug. Names
// typed by the admin ("Waist Harness") are slugified before the lookup.
func (s *Service) findProduct(ctx context.Context, ref string) (*catalogdomain.Product, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, catalogdomain.ErrProductNotFound
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		product, err := s.catalogRepo.FindProduct(ctx, s.db, snowflake.ID(id))
		if err != nil {
			return nil, err
		}
		if product != nil {
			return product, nil
		}
	}

	product, err := s.catalogRepo.FindProductBySlug(ctx, s.db, slug.Make(ref))
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, catalogdomain.ErrProductNotFound
	}
	return product, nil
}

func (s *Service) audit(ctx context.Context, product *catalogdomain.Product) {
	if s.auditSvc == nil {
		return
	}
	targetID := product.ID.String()
	if err := s.auditSvc.AuditLog(ctx, auditdomain.ActionDescriptionGenerated, auditdomain.TargetTypeProduct, &targetID, map[string]any{
		"product_name": product.Name,
		"slug":         product.Slug,
	}); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", auditdomain.ActionDescriptionGenerated), zap.Error(err))
	}
}
