package models

import "time"

// TunnelInfo describes one live tunnel bound to a local port. It is owned by
// the tunnel manager for its whole lifetime and never mutated after creation.
type TunnelInfo struct {
	URL       string
	Subdomain string
	Port      int
	CreatedAt time.Time
}
