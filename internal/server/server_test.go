package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/storefront/internal/audit/domain"
	"github.com/smallbiznis/storefront/internal/config"
	obscontext "github.com/smallbiznis/storefront/internal/observability/context"
	descriptiondomain "github.com/smallbiznis/storefront/internal/description/domain"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	waitlistdomain "github.com/smallbiznis/storefront/internal/waitlist/domain"
	"go.uber.org/zap"
)

type fakePaymentService struct {
	outcome      paymentdomain.Outcome
	notify       paymentdomain.NotifyStatus
	initResult   paymentdomain.InitializeResult
	initErr      error
	actionResult paymentdomain.Result
	actionErr    error

	lastOrderNumber string
	lastBaseURL     string
	lastPaymentID   snowflake.ID
	lastAmount      *int64
	lastActor       string
}

func (f *fakePaymentService) HandleSuccess(ctx context.Context, orderNumber string) paymentdomain.Outcome {
	f.lastOrderNumber = orderNumber
	return f.outcome
}

func (f *fakePaymentService) HandleFail(ctx context.Context, orderNumber string) paymentdomain.Outcome {
	f.lastOrderNumber = orderNumber
	return f.outcome
}

func (f *fakePaymentService) HandleNotify(ctx context.Context, orderNumber string) paymentdomain.NotifyStatus {
	f.lastOrderNumber = orderNumber
	return f.notify
}

func (f *fakePaymentService) Initialize(ctx context.Context, orderNumber string, baseURL string) (paymentdomain.InitializeResult, error) {
	f.lastOrderNumber = orderNumber
	f.lastBaseURL = baseURL
	return f.initResult, f.initErr
}

func (f *fakePaymentService) Refund(ctx context.Context, paymentID snowflake.ID, amountMinor *int64) (paymentdomain.Result, error) {
	f.lastPaymentID = paymentID
	f.lastAmount = amountMinor
	f.lastActor = obscontext.ActorFromContext(ctx)
	return f.actionResult, f.actionErr
}

func (f *fakePaymentService) Void(ctx context.Context, paymentID snowflake.ID) (paymentdomain.Result, error) {
	f.lastPaymentID = paymentID
	return f.actionResult, f.actionErr
}

type fakeWaitlistService struct {
	subscribeErr error
	listResp     waitlistdomain.ListResponse
	listErr      error

	subscribed []waitlistdomain.SubscribeRequest
	lastList   waitlistdomain.ListRequest
}

func (f *fakeWaitlistService) Subscribe(ctx context.Context, req waitlistdomain.SubscribeRequest) (*waitlistdomain.Entry, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.subscribed = append(f.subscribed, req)
	return &waitlistdomain.Entry{ID: snowflake.ID(900), Email: req.Email, VariantID: req.VariantID}, nil
}

func (f *fakeWaitlistService) List(ctx context.Context, req waitlistdomain.ListRequest) (waitlistdomain.ListResponse, error) {
	f.lastList = req
	return f.listResp, f.listErr
}

func (f *fakeWaitlistService) Fanout(ctx context.Context, variantID snowflake.ID) (int, error) {
	return 0, nil
}

func (f *fakeWaitlistService) DeliverRestockEmail(ctx context.Context, entryID snowflake.ID) error {
	return nil
}

type fakeDescriptionService struct {
	result  descriptiondomain.Result
	bulk    descriptiondomain.BulkResponse
	err     error
	lastRef string
	lastIDs []string
}

func (f *fakeDescriptionService) Generate(ctx context.Context, productRef string) (descriptiondomain.Result, error) {
	f.lastRef = productRef
	return f.result, f.err
}

func (f *fakeDescriptionService) GenerateBulk(ctx context.Context, req descriptiondomain.BulkRequest) (descriptiondomain.BulkResponse, error) {
	f.lastIDs = req.ProductIDs
	return f.bulk, f.err
}

type fakeInventoryService struct {
	item    *inventorydomain.StockItem
	err     error
	lastReq inventorydomain.SetCountRequest
}

func (f *fakeInventoryService) SetCountOnHand(ctx context.Context, req inventorydomain.SetCountRequest) (*inventorydomain.StockItem, error) {
	f.lastReq = req
	return f.item, f.err
}

func (f *fakeInventoryService) SyncFeed(ctx context.Context, supplier string, quantities map[string]int) (inventorydomain.SyncStats, error) {
	return inventorydomain.SyncStats{}, nil
}

type fakeStockSyncer struct {
	stats        inventorydomain.SyncStats
	err          error
	lastSupplier string
}

func (f *fakeStockSyncer) Sync(ctx context.Context, supplierKey string) (inventorydomain.SyncStats, error) {
	f.lastSupplier = supplierKey
	return f.stats, f.err
}

type fakeAuditService struct {
	resp    auditdomain.ListAuditLogResponse
	err     error
	lastReq auditdomain.ListAuditLogRequest
}

func (f *fakeAuditService) AuditLog(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (f *fakeAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

type testDeps struct {
	cfg         config.Config
	payment     *fakePaymentService
	waitlist    *fakeWaitlistService
	description *fakeDescriptionService
	inventory   *fakeInventoryService
	syncer      *fakeStockSyncer
	audit       *fakeAuditService
	limiter     *ratelimit.WaitlistLimiter
}

func newTestDeps() *testDeps {
	return &testDeps{
		cfg: config.Config{
			StorefrontURL: "https://shop.example.com",
			Admin:         config.AdminConfig{Username: "admin", Password: "secret"},
		},
		payment:     &fakePaymentService{},
		waitlist:    &fakeWaitlistService{},
		description: &fakeDescriptionService{},
		inventory:   &fakeInventoryService{},
		syncer:      &fakeStockSyncer{},
		audit:       &fakeAuditService{},
	}
}

func newTestServer(t *testing.T, deps *testDeps) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	return NewServer(ServerParams{
		Gin:             engine,
		Cfg:             deps.cfg,
		Log:             zap.NewNop(),
		AuditSvc:        deps.audit,
		PaymentSvc:      deps.payment,
		InventorySvc:    deps.inventory,
		StockSyncer:     deps.syncer,
		WaitlistSvc:     deps.waitlist,
		DescriptionSvc:  deps.description,
		WaitlistLimiter: deps.limiter,
	})
}

func serve(srv *Server, method, target, contentType, body string, admin bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if admin {
		req.SetBasicAuth("admin", "secret")
	}
	resp := httptest.NewRecorder()
	srv.Engine().ServeHTTP(resp, req)
	return resp
}

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)
