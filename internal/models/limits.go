package models

// Field length limits, in characters
const (
	MaxUsernameLength            = 30
	MaxSphereNameLength          = 50
	MaxSphereDescriptionLength   = 1000
	MaxSatelliteNameLength       = 50
	MaxCategoryNameLength        = 50
	MaxCategoryDescriptionLength = 500
	MaxTitleLength               = 250
	MaxBodyLength                = 20000
	MaxLinkLength                = 500
	MaxModeratorMessageLength    = 500
	MaxRuleTitleLength           = 250
	MaxRuleDescriptionLength     = 5000
)
