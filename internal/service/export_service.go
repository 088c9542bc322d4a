package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-bulletin-api/pkg/errors"
	"github.com/noah-isme/sma-bulletin-api/pkg/storage"
)

type fileStorage interface {
	SaveStream(filename string, r io.Reader) (string, int64, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type linkSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (*storage.DownloadClaims, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures a stored file and the signed link serving it.
type ExportResult struct {
	RelativePath string
	Size         int64
	Token        string
	URL          string
	ExpiresAt    time.Time
}

// ExportService persists generated documents and issues signed download links for them.
type ExportService struct {
	storage fileStorage
	signer  linkSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(storage fileStorage, signer linkSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{storage: storage, signer: signer, logger: logger, cfg: cfg}
}

// Store streams the output of write into <jobID>/<filename> and signs a link to it.
// Nothing is kept when write fails.
func (s *ExportService) Store(jobID, filename string, write func(io.Writer) error) (*ExportResult, error) {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(write(pw))
	}()
	relPath, size, err := s.storage.SaveStream(path.Join(jobID, filename), pr)
	if err != nil {
		// unblocks the writer if storage gave up first
		pr.CloseWithError(err)
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		if delErr := s.storage.Delete(relPath); delErr != nil {
			s.logger.Sugar().Warnw("failed to remove unsigned export", "path", relPath, "error", delErr)
		}
		return nil, err
	}
	return &ExportResult{
		RelativePath: relPath,
		Size:         size,
		Token:        token,
		URL:          s.downloadURL(token),
		ExpiresAt:    expiresAt,
	}, nil
}

// Resolve validates a download token. Expired links map to ErrTokenExpired, anything else
// unverifiable to ErrForbidden.
func (s *ExportService) Resolve(token string) (*storage.DownloadClaims, error) {
	claims, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrLinkExpired) {
			return nil, appErrors.ErrTokenExpired
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	return claims, nil
}

// LocateExpired returns the stored path behind a link regardless of its expiry.
func (s *ExportService) LocateExpired(token string) (string, error) {
	claims, err := s.signer.Parse(token, true)
	if err != nil {
		return "", err
	}
	return claims.Path, nil
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) downloadURL(token string) string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/bulletins/download/%s", prefix, token)
}

// TokenFromURL extracts the trailing token of a download URL.
func TokenFromURL(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}
