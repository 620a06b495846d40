package api

import (
	"context"
	"net/http"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// Analytics returns the platform summary. Admin only.
func (c *Client) Analytics(ctx context.Context) (domain.Analytics, error) {
	var out domain.Analytics
	err := c.doJSON(ctx, http.MethodGet, "/admin/analytics", nil, &out)
	return out, err
}

// AuditLogCSV downloads the audit log as CSV. Admin only.
func (c *Client) AuditLogCSV(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/admin/reports/audit-log", nil, "")
}
