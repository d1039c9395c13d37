package types

// SiteIDNone is the site ID used when the deployment serves a single
// unnamed site.
const SiteIDNone = "none"

// User represents a user of the system. Admin is derived per request by
// the auth middleware and never stored.
type User struct {
	ID      string   `json:"id"`
	Email   string   `json:"email"`
	SiteIDs []string `json:"siteIDs"`
	Admin   bool     `json:"-"`
}
