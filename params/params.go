package params

import "time"

const (
	ServerBodyLimit    = 1048576 // 1 MiB
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second

	ResponseCacheKeyPrefix = "rc:"
	PendingAuthKeyPrefix   = "pa:"

	// TokenExpiryMargin is subtracted from a credential's expiry before the
	// freshness check, so a token that would expire mid-request is refreshed
	// up front instead of being sent upstream.
	TokenExpiryMargin = 30 * time.Second

	PendingAuthExpiration = 10 * time.Minute // window to complete the bexio consent screen
	ResponseCacheTTL      = 30 * time.Second // read-through cache TTL for upstream GETs

	TokenEndpointTimeout   = 15 * time.Second // code exchange and refresh calls
	SessionVerifyTimeout   = 10 * time.Second // softr session verification calls
	UpstreamRequestTimeout = 30 * time.Second // proxied bexio calls

	CipherKeyIterations = 4096 // pbkdf2 rounds for the token cipher key

	HealthCheckServerAddr = ":3001" // health check server address
)
