package domain

import "time"

type ResponseMode string

const (
	ResponseManual ResponseMode = "manual"
	ResponseAuto   ResponseMode = "auto"
)

// Business is a tenant. Created by onboarding; this subsystem only reads it.
type Business struct {
	ID            int64
	Name          string
	Active        bool
	ResponseMode  ResponseMode
	ResponseTone  *string
	ResponseLangs []string // accepted response languages, e.g. ["en","it"]
	CreatedAt     time.Time
	DeletedAt     *time.Time
}

type Platform string

const (
	PlatformGoogle    Platform = "google"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTikTok    Platform = "tiktok"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformGoogle, PlatformInstagram, PlatformFacebook, PlatformTikTok:
		return true
	}
	return false
}

// PlatformConnection binds one business to one platform. At most one active
// connection per (business, platform); created by the OAuth callback.
type PlatformConnection struct {
	ID                int64
	BusinessID        int64
	Platform          Platform
	ExternalAccountID string
	ExternalLocation  string // location/page/profile id, platform-specific
	AccessToken       string
	RefreshToken      *string
	TokenExpiresAt    *time.Time
	Enabled           bool
	LastCursor        *string // opaque adapter paging cursor from the previous run
}
