package domain

// Sort orders accepted by Query.SortOrder.
const (
	SortAscending  = "ascending"
	SortDescending = "descending"
)

// SortOnTitle sorts results by their collated, case-insensitive title.
const SortOnTitle = "sortable_title"

// Query filters catalog results. Zero values do not filter.
type Query struct {
	UID        string
	PortalType string
	Title      string
	ParentUID  string
	IsActive   *bool
	SortOn     string
	SortOrder  string
}

// Brain is the lightweight catalog entry for a record. The full record is
// resolved through the repository by UID.
type Brain struct {
	UID           string `json:"uid"`
	ID            string `json:"id"`
	PortalType    string `json:"portal_type"`
	Title         string `json:"title"`
	SortableTitle string `json:"sortable_title"`
	IsActive      bool   `json:"is_active"`
	ParentUID     string `json:"parent_uid"`
	Path          string `json:"path"`
}

// Active returns a pointer suitable for Query.IsActive.
func Active(v bool) *bool { return &v }
