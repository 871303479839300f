package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

const concurrencyLimit = 10

// VersionCatalog is the part of the deployment service the importer writes to
type VersionCatalog interface {
	CreateVersion(ctx context.Context, req *models.CreateVersionRequest) (*models.ModelVersion, error)
}

// Result summarises one import run
type Result struct {
	Imported int
	Skipped  int
	Failed   int
}

// Service imports model versions into the version catalog
type Service struct {
	catalog        VersionCatalog
	httpClient     *http.Client
	requestHeaders map[string]string
	logger         *zap.Logger
}

// NewService creates a new importer service with sane defaults
func NewService(catalog VersionCatalog, logger *zap.Logger) *Service {
	// Allow user to override HTTP timeout via environment variable (seconds)
	timeout := 30 * time.Second
	if s := strings.TrimSpace(os.Getenv("MODEL_REGISTRY_HTTP_TIMEOUT_SECONDS")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 120 {
			timeout = time.Duration(v) * time.Second
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog:        catalog,
		httpClient:     &http.Client{Timeout: timeout},
		requestHeaders: map[string]string{},
		logger:         logger.Named("importer"),
	}
}

// SetRequestHeaders replaces headers used for HTTP fetches
func (s *Service) SetRequestHeaders(headers map[string]string) {
	s.requestHeaders = headers
}

// SetHTTPClient overrides the HTTP client used for fetches
func (s *Service) SetHTTPClient(client *http.Client) {
	if client != nil {
		s.httpClient = client
	}
}

// ImportFromPath imports model versions from a local file or an HTTP(S)
// URL. The document is a YAML or JSON list of version requests. Versions
// that already exist are skipped.
func (s *Service) ImportFromPath(ctx context.Context, path string) (*Result, error) {
	versions, err := s.readSeedFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed data: %w", err)
	}

	var imported, skipped, failed atomic.Int32
	total := len(versions)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit)
	for i, req := range versions {
		g.Go(func() error {
			_, err := s.catalog.CreateVersion(gctx, req)
			switch {
			case err == nil:
				imported.Add(1)
				s.logger.Debug("imported version",
					zap.Int("index", i+1), zap.Int("total", total), zap.String("model_id", req.ModelID), zap.String("version", req.Version))
			case errors.Is(err, service.ErrConflict):
				skipped.Add(1)
			case errors.Is(err, service.ErrInfrastructure):
				failed.Add(1)
				return err
			default:
				failed.Add(1)
				s.logger.Warn("skipping invalid version", zap.String("model_id", req.ModelID), zap.String("version", req.Version), zap.Error(err))
			}
			return nil
		})
	}
	err = g.Wait()

	result := &Result{Imported: int(imported.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
	s.logger.Info("import finished",
		zap.String("source", path),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	if err != nil {
		return result, fmt.Errorf("import aborted: %w", err)
	}
	return result, nil
}

// readSeedFile reads seed data from a file or URL
func (s *Service) readSeedFile(ctx context.Context, path string) ([]*models.CreateVersionRequest, error) {
	var data []byte
	var err error

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		data, err = s.fetchFromHTTP(ctx, path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seed data from %s: %w", path, err)
	}

	return ParseVersions(data)
}

// ParseVersions decodes a YAML or JSON list of version requests
func ParseVersions(data []byte) ([]*models.CreateVersionRequest, error) {
	var generic []any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	// yaml.v3 decodes into map[string]any, which encoding/json accepts
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	var versions []*models.CreateVersionRequest
	if err := json.Unmarshal(raw, &versions); err != nil {
		return nil, fmt.Errorf("failed to parse seed data as a version list: %w", err)
	}
	return slices.DeleteFunc(versions, func(v *models.CreateVersionRequest) bool { return v == nil }), nil
}

func (s *Service) fetchFromHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	// apply custom headers if provided
	for k, v := range s.requestHeaders {
		req.Header.Set(k, v)
	}

	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from HTTP: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP request failed with status: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
