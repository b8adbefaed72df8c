package handlers

import (
	"strings"
	"time"

	"adstudio/internal/domain"
	"adstudio/internal/storage"
)

type jobView struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Input       inputView   `json:"input"`
	Output      *outputView `json:"output"`
	Error       *errorView  `json:"error"`
	Attempts    int         `json:"attempts"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at"`
}

type inputView struct {
	Instructions      string `json:"instructions"`
	CharacterImageURL string `json:"character_image_url"`
	ProductImageURL   string `json:"product_image_url"`
}

type outputView struct {
	ImageURL    string     `json:"image_url"`
	GeneratedAt *time.Time `json:"generated_at"`
}

type errorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// newJobView renders a job. Inline input images are replaced by their fetch
// URL so listings stay small.
func newJobView(baseURL string, job *domain.Job) jobView {
	v := jobView{
		ID:     job.ID,
		Status: string(job.Status),
		Input: inputView{
			Instructions:      job.Instructions,
			CharacterImageURL: inputRef(baseURL, job, domain.ImageSlotCharacter),
			ProductImageURL:   inputRef(baseURL, job, domain.ImageSlotProduct),
		},
		Attempts:    job.Attempts,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.OutputImage != "" {
		v.Output = &outputView{ImageURL: job.OutputImage, GeneratedAt: job.CompletedAt}
	}
	if job.ErrorMessage != "" {
		code := job.ErrorCode
		if code == "" {
			code = domain.ErrorCodeUnknown
		}
		v.Error = &errorView{Code: code, Message: job.ErrorMessage}
	}
	return v
}

func inputRef(baseURL string, job *domain.Job, slot domain.ImageSlot) string {
	if stored := strings.TrimSpace(job.Image(slot)); storage.IsRemote(stored) {
		return stored
	}
	return storage.ImageURL(baseURL, job.ID, slot)
}
