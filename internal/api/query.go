package api

import (
	"net/http"
	"strconv"

	"github.com/streamvault/streamvault/internal/apierr"
	"github.com/streamvault/streamvault/internal/auth"
	"github.com/streamvault/streamvault/internal/httputil"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/query"
)

// mediaQueryRequest is the wire shape of a media query request body,
// translated into a query.MediaQuery before being handed to the
// engine. Kept separate from query.MediaQuery itself so the JSON
// contract can evolve independently of the engine's internal field
// names.
type mediaQueryRequest struct {
	LibraryIDs []string `json:"library_ids,omitempty"`
	Genres     []string `json:"genres,omitempty"`
	YearMin    *int     `json:"year_min,omitempty"`
	YearMax    *int     `json:"year_max,omitempty"`
	RatingMin  *float64 `json:"rating_min,omitempty"`
	RatingMax  *float64 `json:"rating_max,omitempty"`
	MediaType  string   `json:"media_type,omitempty"`

	WatchStatus         string `json:"watch_status,omitempty"`
	RecentlyWatchedDays int    `json:"recently_watched_days,omitempty"`

	SearchTerm   string   `json:"search_term,omitempty"`
	SearchMode   string   `json:"search_mode,omitempty"`
	SearchFields []string `json:"search_fields,omitempty"`

	SortField  string `json:"sort_field,omitempty"`
	Descending bool   `json:"descending,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func (req mediaQueryRequest) toMediaQuery(user *auth.ContextUserData) (query.MediaQuery, error) {
	libIDs, err := parseIDs(req.LibraryIDs)
	if err != nil {
		return query.MediaQuery{}, err
	}

	fields := make([]query.SearchField, 0, len(req.SearchFields))
	for _, f := range req.SearchFields {
		fields = append(fields, query.SearchField(f))
	}

	q := query.MediaQuery{
		Filters: query.Filters{
			LibraryIDs:          libIDs,
			Genres:              req.Genres,
			YearMin:             req.YearMin,
			YearMax:             req.YearMax,
			RatingMin:           req.RatingMin,
			RatingMax:           req.RatingMax,
			MediaType:           query.MediaType(req.MediaType),
			WatchStatus:         query.WatchStatus(req.WatchStatus),
			RecentlyWatchedDays: req.RecentlyWatchedDays,
		},
		Search: query.Search{
			Term:   req.SearchTerm,
			Fields: fields,
			Mode:   query.SearchMode(req.SearchMode),
		},
		Sort: query.Sort{
			Field:      query.SortField(req.SortField),
			Descending: req.Descending,
		},
		Pagination: query.Pagination{Limit: req.Limit, Offset: req.Offset},
	}
	if user != nil {
		q.UserContext = &query.UserContext{UserID: user.UserID}
	}
	return q, nil
}

// handleMediaQuery runs a filtered/searched/sorted/paginated media
// query against the catalog, attaching the caller's watch status to
// every result.
func (s *Server) handleMediaQuery(w http.ResponseWriter, r *http.Request) {
	var req mediaQueryRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		apierr.WriteHTTP(w, apierr.InvalidInput("malformed request body"))
		return
	}

	user := auth.UserFromContext(r.Context())
	q, err := req.toMediaQuery(user)
	if err != nil {
		apierr.WriteHTTP(w, apierr.InvalidInput(err.Error()))
		return
	}

	result, err := s.queryEngine.Run(r.Context(), q)
	if err != nil {
		if err == query.ErrMissingUserContext {
			apierr.WriteHTTP(w, apierr.Unauthorized("watch status filters require authentication"))
			return
		}
		apierr.WriteHTTP(w, apierr.Internal(err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleLibraryMedia is the path-scoped convenience form of
// handleMediaQuery: browsing a single library, with optional sort/page
// query params, without constructing a POST body.
func (s *Server) handleLibraryMedia(w http.ResponseWriter, r *http.Request) {
	libraryID, err := parseLibraryID(r)
	if err != nil {
		apierr.WriteHTTP(w, apierr.InvalidInput("invalid library id"))
		return
	}

	q := query.MediaQuery{
		Filters: query.Filters{LibraryIDs: []models.LibraryID{libraryID}},
		Sort: query.Sort{
			Field:      query.SortField(r.URL.Query().Get("sort_field")),
			Descending: r.URL.Query().Get("descending") == "true",
		},
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			q.Pagination.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			q.Pagination.Offset = n
		}
	}

	user := auth.UserFromContext(r.Context())
	if user != nil {
		q.UserContext = &query.UserContext{UserID: user.UserID}
	}

	result, err := s.queryEngine.Run(r.Context(), q)
	if err != nil {
		if err == query.ErrMissingUserContext {
			apierr.WriteHTTP(w, apierr.Unauthorized("watch status filters require authentication"))
			return
		}
		apierr.WriteHTTP(w, apierr.Internal(err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
