package harvester

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gosom/google-maps-review-images/entities"
)

type State string

const (
	StateStart     State = "start"
	StateRendering State = "rendering"
	StateExtract   State = "extracting"
	StateFetching  State = "fetching"
	StateDone      State = "done"
	StateAborted   State = "aborted"
)

// ItemResult is the outcome of one image download.
type ItemResult struct {
	Ref      entities.ImageRef
	Asset    *entities.StoredAsset
	Err      error
	Attempts int
}

func (i ItemResult) Saved() bool {
	return i.Err == nil && i.Asset != nil
}

// PageResult describes what happened to one target page.
type PageResult struct {
	EntityID  string
	SourceURL string
	State     State
	NoGallery bool
	Expanded  bool

	ImagesFound  int
	ImagesSaved  int
	ImagesFailed int

	// RenderError is set when the page aborted before any download started.
	RenderError error

	Items     []ItemResult
	StartedAt time.Time
	Duration  time.Duration
}

// OK reports whether rendering, extraction and scheduling completed. Failed
// downloads do not change it; a page without a gallery is OK too.
func (r *PageResult) OK() bool {
	return r.State == StateDone
}

func (r *PageResult) errorString() string {
	if r.RenderError == nil {
		return ""
	}

	return r.RenderError.Error()
}

func (r *PageResult) CsvHeaders() []string {
	return []string{
		"entity_id",
		"source_url",
		"state",
		"expanded",
		"images_found",
		"images_saved",
		"images_failed",
		"error",
		"duration_ms",
	}
}

func (r *PageResult) CsvRow() []string {
	return []string{
		r.EntityID,
		r.SourceURL,
		string(r.State),
		strconv.FormatBool(r.Expanded),
		strconv.Itoa(r.ImagesFound),
		strconv.Itoa(r.ImagesSaved),
		strconv.Itoa(r.ImagesFailed),
		r.errorString(),
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
	}
}

type itemReport struct {
	URL      string `json:"url"`
	Index    int    `json:"index"`
	Key      string `json:"key,omitempty"`
	Location string `json:"location,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type pageReport struct {
	EntityID     string       `json:"entity_id"`
	SourceURL    string       `json:"source_url"`
	State        State        `json:"state"`
	OK           bool         `json:"ok"`
	NoGallery    bool         `json:"no_gallery"`
	Expanded     bool         `json:"expanded"`
	ImagesFound  int          `json:"images_found"`
	ImagesSaved  int          `json:"images_saved"`
	ImagesFailed int          `json:"images_failed"`
	Error        string       `json:"error,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	DurationMS   int64        `json:"duration_ms"`
	Items        []itemReport `json:"items,omitempty"`
}

func (r *PageResult) MarshalJSON() ([]byte, error) {
	rep := pageReport{
		EntityID:     r.EntityID,
		SourceURL:    r.SourceURL,
		State:        r.State,
		OK:           r.OK(),
		NoGallery:    r.NoGallery,
		Expanded:     r.Expanded,
		ImagesFound:  r.ImagesFound,
		ImagesSaved:  r.ImagesSaved,
		ImagesFailed: r.ImagesFailed,
		Error:        r.errorString(),
		StartedAt:    r.StartedAt,
		DurationMS:   r.Duration.Milliseconds(),
	}

	for _, it := range r.Items {
		ir := itemReport{
			URL:      it.Ref.URL,
			Index:    it.Ref.Index,
			Attempts: it.Attempts,
		}

		if it.Asset != nil {
			ir.Key = it.Asset.Key
			ir.Location = it.Asset.Location
			ir.Bytes = it.Asset.Bytes
		}

		if it.Err != nil {
			ir.Error = it.Err.Error()
		}

		rep.Items = append(rep.Items, ir)
	}

	return json.Marshal(rep)
}
