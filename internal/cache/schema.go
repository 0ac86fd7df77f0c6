package cache

// SQL schemas for cache tables
// All cache tables use "cache_key" as the primary key column for consistency.
// Entries carry their own expiry so positive and negative lookups can live
// side by side with different lifetimes.

// GoogleBooksCacheSchema defines the schema for Google Books API cache
const GoogleBooksCacheSchema = `
CREATE TABLE IF NOT EXISTS googlebooks_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_googlebooks_expires_at ON googlebooks_cache(expires_at);
`

// GoogleBooksTable is the cache table used by the metadata resolver.
const GoogleBooksTable = "googlebooks_cache"

// AllCacheSchemas contains all cache table schemas for easy initialization
var AllCacheSchemas = []string{
	GoogleBooksCacheSchema,
}

// ValidCacheTableNames is the whitelist of allowed cache table names
// Used to prevent SQL injection when interpolating table names
var ValidCacheTableNames = map[string]bool{
	GoogleBooksTable: true,
}
