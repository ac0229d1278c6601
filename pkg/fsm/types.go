package fsm

// DownloadRequest is the FSM input. Exactly one of Source and BBox is set.
type DownloadRequest struct {
	Source            string
	BBox              string
	NewLayer          bool
	ZoomAfterDownload bool
}

// DownloadResponse is the FSM output (accumulated across transitions)
type DownloadResponse struct {
	// From Resolve
	SourceKind  string
	ResolvedURL string
	Bounds      string

	// From Download
	TrackLayerID   string
	TrackLayerName string
	MarkerLayerID  string
	Merged         bool
	MarkerMerged   bool
	Points         int
	Partial        bool

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateResolve  = "resolve"
	StateDownload = "download"
	StatePersist  = "persist"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// Status values
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)
