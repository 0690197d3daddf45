package audit

import (
	"github.com/smallbiznis/storefront/internal/audit/repository"
	"github.com/smallbiznis/storefront/internal/audit/service"
	"go.uber.org/fx"
)

// Module provides the audit trail written by payment actions and the
// description generator and read by GET /admin/audit_logs.
var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
