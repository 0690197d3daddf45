package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	catalogdomain "github.com/smallbiznis/storefront/internal/catalog/domain"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/internal/providers/email"
	waitlistdomain "github.com/smallbiznis/storefront/internal/waitlist/domain"
	"github.com/smallbiznis/storefront/pkg/db"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Cfg         config.Config
	Repo        waitlistdomain.Repository
	CatalogRepo catalogdomain.Repository
	Notifier    waitlistdomain.Notifier
	Email       email.Provider
	Clock       clock.Clock         `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	storefrontURL string
	repo          waitlistdomain.Repository
	catalogRepo   catalogdomain.Repository
	notifier      waitlistdomain.Notifier
	email         email.Provider
	clock         clock.Clock
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) waitlistdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("waitlist.service"),
		genID:         p.GenID,
		storefrontURL: strings.TrimRight(p.Cfg.StorefrontURL, "/"),
		repo:          p.Repo,
		catalogRepo:   p.CatalogRepo,
		notifier:      p.Notifier,
		email:         p.Email,
		clock:         clk,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Service) Subscribe(ctx context.Context, req waitlistdomain.SubscribeRequest) (*waitlistdomain.Entry, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Email, validation.Required, validation.Length(3, 254), validation.Match(emailPattern).Error("must be a valid email address")),
		validation.Field(&req.VariantID, validation.Required),
	); err != nil {
		s.obsMetrics.RecordWaitlistSubscribe(ctx, "invalid")
		return nil, err
	}

	variant, err := s.catalogRepo.FindVariant(ctx, s.db, req.VariantID)
	if err != nil {
		return nil, err
	}
	if variant == nil {
		s.obsMetrics.RecordWaitlistSubscribe(ctx, "variant_not_found")
		return nil, catalogdomain.ErrVariantNotFound
	}

	now := s.clock.Now()
	entry := waitlistdomain.Entry{
		ID:        s.genID.Generate(),
		Email:     req.Email,
		VariantID: variant.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.obsMetrics.RecordWaitlistSubscribe(ctx, "duplicate")
			return nil, waitlistdomain.ErrAlreadyWaitlisted
		}
		return nil, err
	}

	s.obsMetrics.RecordWaitlistSubscribe(ctx, "subscribed")
	s.log.Info("waitlist entry created",
		zap.String("entry_id", entry.ID.String()),
		zap.String("variant_id", entry.VariantID.String()),
	)
	return &entry, nil
}

func (s *Service) List(ctx context.Context, req waitlistdomain.ListRequest) (waitlistdomain.ListResponse, error) {
	filter := waitlistdomain.ListFilter{
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		PendingOnly: req.PendingOnly,
	}
	if raw := strings.TrimSpace(req.VariantID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return waitlistdomain.ListResponse{}, catalogdomain.ErrVariantNotFound
		}
		filter.VariantID = &id
	}

	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return waitlistdomain.ListResponse{}, waitlistdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return waitlistdomain.ListResponse{}, waitlistdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return waitlistdomain.ListResponse{}, waitlistdomain.ErrInvalidPageToken
		}
		filter.Cursor = &waitlistdomain.EntryCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := pagination.ClampPageSize(req.PageSize, 25, 100)
	filter.Limit = pageSize

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return waitlistdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *waitlistdomain.Entry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	entries := make([]waitlistdomain.Entry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	resp := waitlistdomain.ListResponse{Entries: entries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Fanout(ctx context.Context, variantID snowflake.ID) (int, error) {
	log := s.log.With(zap.String("variant_id", variantID.String()))

	variant, err := s.catalogRepo.FindVariant(ctx, s.db, variantID)
	if err != nil {
		return 0, err
	}
	if variant == nil {
		log.Warn("skipping restock fan-out, variant not found")
		return 0, nil
	}
	product, err := s.catalogRepo.FindProduct(ctx, s.db, variant.ProductID)
	if err != nil {
		return 0, err
	}
	if product == nil {
		log.Warn("skipping restock fan-out, product not found", zap.String("product_id", variant.ProductID.String()))
		return 0, nil
	}

	entries, err := s.repo.ListPendingByVariant(ctx, s.db, variantID)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	// Only the entries seen here are marked; later subscribers wait for the next restock.
	ids := make([]snowflake.ID, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}

	for _, entry := range entries {
		if err := s.notifier.NotifyRestock(ctx, entry); err != nil {
			log.Error("restock notification dispatch failed", zap.String("entry_id", entry.ID.String()), zap.Error(err))
			return 0, err
		}
	}

	marked, err := s.repo.MarkNotified(ctx, s.db, ids, s.clock.Now())
	if err != nil {
		return 0, err
	}

	s.obsMetrics.RecordWaitlistNotified(ctx, int(marked))
	log.Info("restock notifications dispatched", zap.Int("entries", len(ids)), zap.Int64("marked", marked))
	return int(marked), nil
}

func (s *Service) DeliverRestockEmail(ctx context.Context, entryID snowflake.ID) error {
	entry, err := s.repo.FindByID(ctx, s.db, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return waitlistdomain.ErrEntryNotFound
	}

	variant, err := s.catalogRepo.FindVariant(ctx, s.db, entry.VariantID)
	if err != nil {
		return err
	}
	if variant == nil {
		return catalogdomain.ErrVariantNotFound
	}
	product, err := s.catalogRepo.FindProduct(ctx, s.db, variant.ProductID)
	if err != nil {
		return err
	}
	if product == nil {
		return catalogdomain.ErrProductNotFound
	}

	optionsText := ""
	if variant.OptionsText != nil {
		optionsText = strings.TrimSpace(*variant.OptionsText)
	}

	data := map[string]any{
		"product_name": product.Name,
		"options_text": optionsText,
		"product_url":  s.storefrontURL + "/products/" + product.Slug,
	}
	if err := s.email.SendTemplate(ctx, []string{entry.Email}, email.TemplateRestock, data); err != nil {
		s.log.Warn("restock email failed", zap.String("entry_id", entry.ID.String()), zap.Error(err))
		return err
	}
	return nil
}
