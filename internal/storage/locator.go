package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"adstudio/internal/domain"
)

// ImageRefs holds engine-fetchable references to the input images of a job.
type ImageRefs struct {
	Character string
	Product   string
}

// Locator turns the stored inputs of a job into URLs the engine can fetch.
// References that are already http(s) URLs are returned unchanged.
type Locator interface {
	Locate(ctx context.Context, job *domain.Job) (ImageRefs, error)
}

// PublicLocator points the engine at the unauthenticated image fetch
// endpoint of this service. The URLs stay valid for the lifetime of the job.
type PublicLocator struct {
	baseURL string
}

// NewPublicLocator builds a locator rooted at the service's public base URL.
func NewPublicLocator(baseURL string) (*PublicLocator, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("storage: invalid public base url %q", baseURL)
	}
	return &PublicLocator{baseURL: baseURL}, nil
}

func (l *PublicLocator) Locate(ctx context.Context, job *domain.Job) (ImageRefs, error) {
	if err := ctx.Err(); err != nil {
		return ImageRefs{}, err
	}
	return ImageRefs{
		Character: l.ref(job, domain.ImageSlotCharacter),
		Product:   l.ref(job, domain.ImageSlotProduct),
	}, nil
}

func (l *PublicLocator) ref(job *domain.Job, slot domain.ImageSlot) string {
	if stored := job.Image(slot); IsRemote(stored) {
		return strings.TrimSpace(stored)
	}
	return ImageURL(l.baseURL, job.ID, slot)
}

// ImageURL is the fetch endpoint path for one input slot of a job.
func ImageURL(baseURL, jobID string, slot domain.ImageSlot) string {
	return baseURL + "/v1/jobs/" + url.PathEscape(jobID) + "/images/" + string(slot)
}
