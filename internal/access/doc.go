// Package access implements the authorization lattice for agent use.
//
// Platform policy overrides everything, tenant policy gates all tenant users,
// the org-admin role bypasses per-user grants, and ordinary users need an
// explicit grant. Subscription-tier comparison is a separate discovery-time
// filter and never part of the per-request decision.
package access
