package vaultapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
)

// OCR implements ports.OCRService.
type OCR struct {
	client *Client
}

func NewOCR(client *Client) *OCR {
	return &OCR{client: client}
}

func (o *OCR) Submit(ctx context.Context, documentURL string) (string, error) {
	request := map[string]any{"documentUrl": documentURL}
	var response struct {
		ID string `json:"id"`
	}
	if err := o.client.call(ctx, http.MethodPost, "/ocr/v1/process", request, &response, "ocr_submit"); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", domain.WrapError(domain.ErrRemote, "ocr_submit", fmt.Errorf("ocr job id missing"))
	}
	return response.ID, nil
}

func (o *OCR) Status(ctx context.Context, jobID string) (ports.OCRJobStatus, error) {
	var response struct {
		Status string `json:"status"`
		Text   string `json:"text"`
		Error  string `json:"error"`
	}
	if err := o.client.call(ctx, http.MethodGet, "/ocr/v1/"+url.PathEscape(jobID), nil, &response, "ocr_status"); err != nil {
		return ports.OCRJobStatus{}, err
	}

	switch strings.ToLower(strings.TrimSpace(response.Status)) {
	case "completed", "succeeded", "done":
		return ports.OCRJobStatus{Done: true, Text: response.Text}, nil
	case "failed", "error":
		return ports.OCRJobStatus{Done: true, Failed: true, Error: response.Error}, nil
	default:
		return ports.OCRJobStatus{}, nil
	}
}
