package api

// API limits and constants.
const (
	// MaxUploadSize is the maximum allowed size of one upload request (64 MB).
	MaxUploadSize = 64 << 20

	// MaxNameLength bounds scan names.
	MaxNameLength = 200

	// MaxGeneratedNames bounds GET /names.
	MaxGeneratedNames = 20
)

// Cache-Control header values.
const (
	CacheOneDayPrivate = "private, max-age=86400"
	CacheRevalidate    = "private, no-cache"
	CacheNoStore       = "no-store"
)
