package query

import "errors"

// ErrMissingUserContext is returned when Filters.WatchStatus is set
// but MediaQuery.UserContext is nil. Watch-status filters are
// inherently user-scoped; there is no library-wide notion of
// "in progress."
var ErrMissingUserContext = errors.New("query: watch status filter requires a user context")
