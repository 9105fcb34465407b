package vaultapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

// ObjectStore implements ports.ObjectStore on top of the vault API.
type ObjectStore struct {
	client *Client
}

func NewObjectStore(client *Client) *ObjectStore {
	return &ObjectStore{client: client}
}

type vaultDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (v vaultDTO) toDomain() domain.Vault {
	return domain.Vault{ID: v.ID, Name: v.Name, Description: v.Description, CreatedAt: v.CreatedAt}
}

type objectDTO struct {
	ID              string            `json:"id"`
	Filename        string            `json:"filename"`
	ContentType     string            `json:"contentType"`
	SizeBytes       int64             `json:"sizeBytes"`
	IngestionStatus string            `json:"ingestionStatus"`
	CreatedAt       time.Time         `json:"createdAt"`
	Metadata        map[string]string `json:"metadata"`
}

func (o objectDTO) toDomain() domain.RemoteObject {
	status := domain.RemoteStatus(strings.ToLower(strings.TrimSpace(o.IngestionStatus)))
	if status == "" {
		status = domain.RemotePending
	}
	return domain.RemoteObject{
		ID:              o.ID,
		Filename:        o.Filename,
		ContentType:     o.ContentType,
		SizeBytes:       o.SizeBytes,
		IngestionStatus: status,
		CreatedAt:       o.CreatedAt,
		Metadata:        o.Metadata,
	}
}

func (s *ObjectStore) ListVaults(ctx context.Context) ([]domain.Vault, error) {
	var response struct {
		Vaults []vaultDTO `json:"vaults"`
	}
	if err := s.client.call(ctx, http.MethodGet, "/vault", nil, &response, "list_vaults"); err != nil {
		return nil, err
	}
	out := make([]domain.Vault, 0, len(response.Vaults))
	for _, v := range response.Vaults {
		out = append(out, v.toDomain())
	}
	return out, nil
}

func (s *ObjectStore) CreateVault(ctx context.Context, name, description string) (*domain.Vault, error) {
	request := map[string]any{
		"name":        name,
		"description": description,
	}
	var response vaultDTO
	if err := s.client.call(ctx, http.MethodPost, "/vault", request, &response, "create_vault"); err != nil {
		return nil, err
	}
	vault := response.toDomain()
	return &vault, nil
}

func (s *ObjectStore) CreateUpload(ctx context.Context, vaultID, filename, contentType string, size int64) (*domain.UploadTarget, error) {
	request := map[string]any{
		"filename":    filename,
		"contentType": contentType,
		"sizeBytes":   size,
	}
	var response struct {
		ObjectID  string `json:"objectId"`
		UploadURL string `json:"uploadUrl"`
	}
	if err := s.client.call(ctx, http.MethodPost, vaultPath(vaultID, "upload"), request, &response, "create_upload"); err != nil {
		return nil, err
	}
	if response.ObjectID == "" || response.UploadURL == "" {
		return nil, domain.WrapError(domain.ErrRemote, "create_upload", fmt.Errorf("incomplete upload target for %s", filename))
	}
	return &domain.UploadTarget{ObjectID: response.ObjectID, UploadURL: response.UploadURL}, nil
}

// UploadBytes streams the file to its presigned target. The body can only be
// read once, so this call is never retried.
func (s *ObjectStore) UploadBytes(ctx context.Context, target domain.UploadTarget, contentType string, size int64, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.UploadURL, body)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if size > 0 {
		req.ContentLength = size
	}

	resp, err := s.client.transferClient.Do(req)
	if err != nil {
		return mapError("upload_bytes", fmt.Errorf("vault upload_bytes request: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return mapError("upload_bytes", newHTTPStatusError("upload_bytes", resp))
	}
	return nil
}

func (s *ObjectStore) TriggerIngestion(ctx context.Context, vaultID, objectID string) error {
	return s.client.call(ctx, http.MethodPost, vaultPath(vaultID, "ingest", objectID), nil, nil, "trigger_ingestion")
}

func (s *ObjectStore) ListObjects(ctx context.Context, vaultID string) ([]domain.RemoteObject, error) {
	var response struct {
		Objects []objectDTO `json:"objects"`
	}
	if err := s.client.call(ctx, http.MethodGet, vaultPath(vaultID, "objects"), nil, &response, "list_objects"); err != nil {
		return nil, err
	}
	out := make([]domain.RemoteObject, 0, len(response.Objects))
	for _, o := range response.Objects {
		out = append(out, o.toDomain())
	}
	return out, nil
}

func (s *ObjectStore) GetObject(ctx context.Context, vaultID, objectID string) (*domain.RemoteObject, error) {
	var response objectDTO
	if err := s.client.call(ctx, http.MethodGet, vaultPath(vaultID, "objects", objectID), nil, &response, "get_object"); err != nil {
		return nil, err
	}
	obj := response.toDomain()
	return &obj, nil
}

func (s *ObjectStore) GetText(ctx context.Context, vaultID, objectID string) (string, error) {
	var response struct {
		Text string `json:"text"`
	}
	if err := s.client.call(ctx, http.MethodGet, vaultPath(vaultID, "objects", objectID, "text"), nil, &response, "get_text"); err != nil {
		return "", err
	}
	return response.Text, nil
}

func (s *ObjectStore) DownloadURL(ctx context.Context, vaultID, objectID string) (string, error) {
	var response struct {
		DownloadURL string `json:"downloadUrl"`
	}
	if err := s.client.call(ctx, http.MethodGet, vaultPath(vaultID, "objects", objectID, "download-url"), nil, &response, "download_url"); err != nil {
		return "", err
	}
	if response.DownloadURL == "" {
		return "", domain.WrapError(domain.ErrRemote, "download_url", fmt.Errorf("empty download url for %s", objectID))
	}
	return response.DownloadURL, nil
}

// Download resolves a direct access URL and opens the object's bytes.
// The caller closes the returned reader.
func (s *ObjectStore) Download(ctx context.Context, vaultID, objectID string) (io.ReadCloser, error) {
	downloadURL, err := s.DownloadURL(ctx, vaultID, objectID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := s.client.transferClient.Do(req)
	if err != nil {
		return nil, mapError("download", fmt.Errorf("vault download request: %w", err))
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, mapError("download", newHTTPStatusError("download", resp))
	}
	return resp.Body, nil
}

func (s *ObjectStore) UpdateMetadata(ctx context.Context, vaultID, objectID string, metadata map[string]string) error {
	request := map[string]any{"metadata": metadata}
	return s.client.call(ctx, http.MethodPatch, vaultPath(vaultID, "objects", objectID, "metadata"), request, nil, "update_metadata")
}

func (s *ObjectStore) DeleteObject(ctx context.Context, vaultID, objectID string) error {
	return s.client.call(ctx, http.MethodDelete, vaultPath(vaultID, "objects", objectID), nil, nil, "delete_object")
}

func vaultPath(vaultID string, segments ...string) string {
	var b strings.Builder
	b.WriteString("/vault/")
	b.WriteString(url.PathEscape(vaultID))
	for _, segment := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(segment))
	}
	return b.String()
}
