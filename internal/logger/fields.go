package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields propagated through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldSearchID is the search log row correlating a query with results
	FieldSearchID = "search_id"

	// FieldMemeID is the meme being created, edited, or synced
	FieldMemeID = "meme_id"

	// FieldSlug is the meme slug being served or resolved
	FieldSlug = "slug"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldUserID is the acting user's ID
	FieldUserID = "user_id"
)
