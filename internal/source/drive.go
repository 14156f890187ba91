// Package source resolves document references: enumerating the documents
// behind a folder link and fetching their raw bytes.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/isotools/drawscan/internal/policy/ratelimit"
	"github.com/isotools/drawscan/internal/scan"
)

const folderMimeType = "application/vnd.google-apps.folder"

var folderIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`id=([a-zA-Z0-9_-]+)`),
}

// ExtractFolderID pulls the folder ID out of a Drive folder URL. A bare ID is
// accepted as-is so callers can pass either form.
func ExtractFolderID(link string) (string, error) {
	for _, pattern := range folderIDPatterns {
		if m := pattern.FindStringSubmatch(link); m != nil {
			return m[1], nil
		}
	}
	if regexp.MustCompile(`^[a-zA-Z0-9_-]+$`).MatchString(link) {
		return link, nil
	}
	return "", fmt.Errorf("could not extract folder id from %q", link)
}

// DriveSource implements scan.DocumentSource against Google Drive using a
// service account.
//
// The underlying service handle is built lazily and cached. When the API
// rejects the cached credentials, the handle is dropped and rebuilt once
// before the operation fails, so a rotated service account key does not
// require a process restart.
type DriveSource struct {
	credentialsFile string
	pageSize        int64
	limiter         *ratelimit.Limiter
	logger          *zap.Logger

	mu  sync.Mutex
	svc *drive.Service
}

// NewDriveSource creates a DriveSource. No credentials are read until the
// first operation. The limiter paces API calls against Drive quotas; pass nil
// to disable throttling.
func NewDriveSource(credentialsFile string, pageSize int, limiter *ratelimit.Limiter, logger *zap.Logger) *DriveSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{})
	}
	return &DriveSource{
		credentialsFile: credentialsFile,
		pageSize:        int64(pageSize),
		limiter:         limiter,
		logger:          logger,
	}
}

func (s *DriveSource) service(ctx context.Context) (*drive.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.svc != nil {
		return s.svc, nil
	}
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(s.credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	s.svc = svc
	return svc, nil
}

// invalidate drops the cached service handle so the next call rebuilds it
// from the credentials file.
func (s *DriveSource) invalidate() {
	s.mu.Lock()
	s.svc = nil
	s.mu.Unlock()
	s.logger.Warn("drive credentials rejected, dropping cached service handle")
}

func isAuthError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 401 || apiErr.Code == 403
	}
	return false
}

// EnumerateItems lists every PDF under the linked folder, descending into
// subfolders. An empty folder yields an empty slice.
func (s *DriveSource) EnumerateItems(ctx context.Context, sourceRef string) ([]scan.ItemDescriptor, error) {
	folderID, err := ExtractFolderID(sourceRef)
	if err != nil {
		return nil, err
	}

	items, err := s.listFolder(ctx, folderID)
	if err != nil && isAuthError(err) {
		s.invalidate()
		items, err = s.listFolder(ctx, folderID)
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *DriveSource) listFolder(ctx context.Context, folderID string) ([]scan.ItemDescriptor, error) {
	svc, err := s.service(ctx)
	if err != nil {
		return nil, err
	}

	var items []scan.ItemDescriptor
	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)
	pageToken := ""
	for {
		if err := s.limiter.Wait(ctx, "list"); err != nil {
			return nil, err
		}
		call := svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, webViewLink)").
			PageSize(s.pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list folder %q: %w", folderID, err)
		}

		for _, file := range res.Files {
			switch file.MimeType {
			case folderMimeType:
				nested, err := s.listFolder(ctx, file.Id)
				if err != nil {
					return nil, err
				}
				items = append(items, nested...)
			case "application/pdf":
				items = append(items, scan.ItemDescriptor{
					DocRef:  file.Id,
					DocName: file.Name,
					DocLink: file.WebViewLink,
				})
			}
		}

		pageToken = res.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return items, nil
}

// FetchDocument downloads one document's raw bytes.
func (s *DriveSource) FetchDocument(ctx context.Context, docRef string) ([]byte, error) {
	data, err := s.download(ctx, docRef)
	if err != nil && isAuthError(err) {
		s.invalidate()
		data, err = s.download(ctx, docRef)
	}
	return data, err
}

func (s *DriveSource) download(ctx context.Context, docRef string) ([]byte, error) {
	svc, err := s.service(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx, "download"); err != nil {
		return nil, err
	}
	resp, err := svc.Files.Get(docRef).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download file %q: %w", docRef, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", docRef, err)
	}
	return data, nil
}
