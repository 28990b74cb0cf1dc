package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/parteiportal/backend/internal/apperror"
	"github.com/parteiportal/backend/internal/identifier"
)

const (
	opUpload      = "storage.upload"
	opUploadBatch = "storage.upload_batch"

	maxUploadRetries   = 3
	retryBaseDelay     = time.Second
	batchConcurrency   = 4
	dedupCacheCapacity = 256
	defaultDedupTTL    = 15 * time.Minute
	defaultMaxBytes    = 10 << 20
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingClient     = errors.New("blob client is required")
	errMissingIDProvider = errors.New("id provider is required")

	msgTooLarge    = "Die Datei überschreitet die maximal zulässige Größe."
	msgBadType     = "Dieser Dateityp wird nicht unterstützt."
	msgEmptyFile   = "Die Datei ist leer."
	msgUploadError = "Die Datei konnte nicht hochgeladen werden."
)

// Allowed content types for portal uploads.
var allowedContentTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

// FileInput is one file received from a multipart form.
type FileInput struct {
	Name        string
	ContentType string
	Data        []byte
}

// ServiceConfig describes the dependencies of the upload service.
type ServiceConfig struct {
	Database   *gorm.DB
	Client     BlobClient
	IDProvider identifier.Provider
	MaxBytes   int64
	DedupTTL   time.Duration
	Sleep      func(time.Duration)
	Logger     *zap.Logger
}

// Service validates, dedups and uploads files to the blob vendor.
type Service struct {
	db         *gorm.DB
	client     BlobClient
	idProvider identifier.Provider
	maxBytes   int64
	cache      *expirable.LRU[string, UploadedFile]
	sleep      func(time.Duration)
	logger     *zap.Logger
}

// NewService constructs the upload service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperror.Internal(opUpload+".missing_database", errMissingDatabase)
	}
	if cfg.Client == nil {
		return nil, apperror.Internal(opUpload+".missing_client", errMissingClient)
	}
	if cfg.IDProvider == nil {
		return nil, apperror.Internal(opUpload+".missing_id_provider", errMissingIDProvider)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		client:     cfg.Client,
		idProvider: cfg.IDProvider,
		maxBytes:   maxBytes,
		cache:      expirable.NewLRU[string, UploadedFile](dedupCacheCapacity, nil, ttl),
		sleep:      sleep,
		logger:     logger,
	}, nil
}

// MaxBytes exposes the configured size limit.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Validate checks type and size without touching the vendor. It runs before
// any hashing or upload work.
func (s *Service) Validate(input FileInput) error {
	if len(input.Data) == 0 {
		return apperror.New(apperror.KindInvalid, opUpload+".empty_file", msgEmptyFile, nil)
	}
	if int64(len(input.Data)) > s.maxBytes {
		return apperror.New(apperror.KindInvalid, opUpload+".too_large", msgTooLarge, nil)
	}
	if _, ok := allowedContentTypes[normalizeContentType(input.ContentType)]; !ok {
		return apperror.New(apperror.KindInvalid, opUpload+".unsupported_type", msgBadType, nil)
	}
	return nil
}

type uploadOutcome struct {
	file  UploadedFile
	fresh bool
}

// Upload validates, dedups and stores one file.
func (s *Service) Upload(ctx context.Context, input FileInput) (UploadedFile, error) {
	outcome, err := s.upload(ctx, input)
	if err != nil {
		return UploadedFile{}, err
	}
	return outcome.file, nil
}

func (s *Service) upload(ctx context.Context, input FileInput) (uploadOutcome, error) {
	if err := s.Validate(input); err != nil {
		return uploadOutcome{}, err
	}

	sum := sha256.Sum256(input.Data)
	digest := hex.EncodeToString(sum[:])
	size := int64(len(input.Data))
	cacheKey := fmt.Sprintf("%s:%d", digest, size)

	if cached, ok := s.cache.Get(cacheKey); ok {
		return uploadOutcome{file: cached}, nil
	}

	var existing UploadedFile
	err := s.db.WithContext(ctx).Where("digest = ? AND size_bytes = ?", digest, size).Take(&existing).Error
	if err == nil {
		s.cache.Add(cacheKey, existing)
		return uploadOutcome{file: existing}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("upload dedup query failed", zap.String("operation", opUpload), zap.Error(err))
		return uploadOutcome{}, apperror.Internal(opUpload+".query_failed", err)
	}

	contentType := normalizeContentType(input.ContentType)
	key := digest[:32] + extensionFor(contentType, input.Name)
	publicURL, err := s.putWithRetry(ctx, key, contentType, input.Data)
	if err != nil {
		return uploadOutcome{}, apperror.New(apperror.KindInternal, opUpload+".vendor_failed", msgUploadError, err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return uploadOutcome{}, apperror.Internal(opUpload+".id_generation_failed", err)
	}
	file := UploadedFile{
		ID:          id,
		Digest:      digest,
		SizeBytes:   size,
		ContentType: contentType,
		FileName:    strings.TrimSpace(input.Name),
		StorageKey:  key,
		PublicURL:   publicURL,
	}
	if err := s.db.WithContext(ctx).Create(&file).Error; err != nil {
		s.logger.Error("upload record insert failed", zap.String("operation", opUpload), zap.Error(err))
		return uploadOutcome{}, apperror.Internal(opUpload+".insert_failed", err)
	}

	s.cache.Add(cacheKey, file)
	return uploadOutcome{file: file, fresh: true}, nil
}

// UploadBatch stores up to batchConcurrency files in parallel. If any file
// fails, files freshly uploaded by the same call are deleted again; dedup hits
// are left alone. Compensation failures are logged, not returned.
func (s *Service) UploadBatch(ctx context.Context, inputs []FileInput) ([]UploadedFile, error) {
	// Size/type problems surface before any vendor call.
	for _, input := range inputs {
		if err := s.Validate(input); err != nil {
			return nil, err
		}
	}

	outcomes := make([]uploadOutcome, len(inputs))
	uploadErrs := make([]error, len(inputs))

	limiter := semaphore.NewWeighted(batchConcurrency)
	var wg sync.WaitGroup
	for index := range inputs {
		if err := limiter.Acquire(ctx, 1); err != nil {
			uploadErrs[index] = err
			continue
		}
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			defer limiter.Release(1)
			outcome, err := s.upload(ctx, inputs[slot])
			outcomes[slot] = outcome
			uploadErrs[slot] = err
		}(index)
	}
	wg.Wait()

	var firstErr error
	for _, err := range uploadErrs {
		if err != nil {
			firstErr = err
			break
		}
	}
	if firstErr != nil {
		s.compensate(ctx, outcomes)
		if _, ok := apperror.AsServiceError(firstErr); ok {
			return nil, firstErr
		}
		return nil, apperror.New(apperror.KindInternal, opUploadBatch+".partial_failure", msgUploadError, firstErr)
	}

	files := make([]UploadedFile, 0, len(outcomes))
	for _, outcome := range outcomes {
		files = append(files, outcome.file)
	}
	return files, nil
}

func (s *Service) putWithRetry(ctx context.Context, key, contentType string, data []byte) (string, error) {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt <= maxUploadRetries; attempt++ {
		if attempt > 0 {
			s.sleep(delay)
			delay *= 2
		}
		url, err := s.client.Put(ctx, key, contentType, data)
		if err == nil {
			return url, nil
		}
		lastErr = err
		s.logger.Warn("blob upload attempt failed",
			zap.String("key", key),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (s *Service) compensate(ctx context.Context, outcomes []uploadOutcome) {
	for _, outcome := range outcomes {
		if !outcome.fresh {
			continue
		}
		if err := s.client.Delete(ctx, outcome.file.StorageKey); err != nil {
			s.logger.Warn("compensating delete failed",
				zap.String("key", outcome.file.StorageKey),
				zap.Error(err))
			continue
		}
		s.cache.Remove(fmt.Sprintf("%s:%d", outcome.file.Digest, outcome.file.SizeBytes))
		if err := s.db.WithContext(ctx).Delete(&UploadedFile{}, "id = ?", outcome.file.ID).Error; err != nil {
			s.logger.Warn("compensating record delete failed",
				zap.String("id", outcome.file.ID),
				zap.Error(err))
		}
	}
}

func normalizeContentType(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if index := strings.Index(trimmed, ";"); index >= 0 {
		trimmed = strings.TrimSpace(trimmed[:index])
	}
	return trimmed
}

func extensionFor(contentType, name string) string {
	if ext, ok := allowedContentTypes[contentType]; ok {
		return ext
	}
	return strings.ToLower(path.Ext(name))
}
