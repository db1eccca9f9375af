// Package rls is the restricted credential tier: a transaction tagged with
// WithTenant only sees rows belonging to that tenant, enforced by the
// database's row-level security policies. Billing and usage writes bypass
// this tier and use the shared server connection directly.
package rls

import (
	"fmt"

	"gorm.io/gorm"
)

// WithTenant scopes the transaction's row visibility to one tenant.
func WithTenant(tx *gorm.DB, tenantID int64) error {
	return tx.Exec(
		"SET LOCAL app.current_org_id = ?",
		fmt.Sprintf("%d", tenantID),
	).Error
}
