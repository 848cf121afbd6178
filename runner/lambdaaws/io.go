package lambdaaws

import (
	"github.com/gosom/google-maps-review-images/entities"
)

// lInput is the event a harvest invocation receives. A single page can be
// passed through EntityID and SourceURL, a chunk through Targets.
type lInput struct {
	JobID       string                `json:"job_id"`
	Part        int                   `json:"part"`
	BucketName  string                `json:"bucket_name"`
	Prefix      string                `json:"prefix,omitempty"`
	EntityID    string                `json:"entity_id,omitempty"`
	SourceURL   string                `json:"source_url,omitempty"`
	Targets     []entities.TargetPage `json:"targets,omitempty"`
	Concurrency int                   `json:"concurrency,omitempty"`
	Retries     int                   `json:"retries,omitempty"`
}

func (i *lInput) targets() []entities.TargetPage {
	ans := make([]entities.TargetPage, 0, len(i.Targets)+1)

	if i.EntityID != "" || i.SourceURL != "" {
		ans = append(ans, entities.TargetPage{EntityID: i.EntityID, SourceURL: i.SourceURL})
	}

	return append(ans, i.Targets...)
}

type lPage struct {
	EntityID     string   `json:"entity_id"`
	OK           bool     `json:"ok"`
	NoGallery    bool     `json:"no_gallery"`
	ImagesFound  int      `json:"images_found"`
	ImagesSaved  int      `json:"images_saved"`
	ImagesFailed int      `json:"images_failed"`
	Error        string   `json:"error,omitempty"`
	Keys         []string `json:"keys,omitempty"`
}

type lOutput struct {
	JobID     string  `json:"job_id"`
	Part      int     `json:"part"`
	ReportKey string  `json:"report_key,omitempty"`
	Pages     []lPage `json:"pages"`
}
