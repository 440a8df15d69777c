package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuslink/portal-api/internal/ingest"
	"github.com/campuslink/portal-api/internal/models"
	"github.com/campuslink/portal-api/internal/multipart"
	"github.com/campuslink/portal-api/internal/repository"
	"github.com/campuslink/portal-api/pkg/config"
	appErrors "github.com/campuslink/portal-api/pkg/errors"
	"github.com/campuslink/portal-api/pkg/export"
	"github.com/campuslink/portal-api/pkg/storage"
)

const (
	listCachePrefix = "schedules:list:"
	sourceManual    = "manual"
	sourceUpload    = "csv_upload"
)

type eventRepository interface {
	Insert(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	Replace(ctx context.Context, event *models.Event) error
	Upsert(ctx context.Context, event *models.Event) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
}

// ScheduleService orchestrates schedule ingestion and CRUD. Each
// operation runs end-to-end inside one request; the only shared mutable
// state is the document store.
type ScheduleService struct {
	repo       eventRepository
	embeddings *EmbeddingService
	blobs      storage.BlobStore
	cache      *CacheService
	decoder    *multipart.Decoder
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger

	defaultContentType string
}

// NewScheduleService constructs the service. blobs may be nil when image
// storage is disabled.
func NewScheduleService(
	repo eventRepository,
	embeddings *EmbeddingService,
	blobs storage.BlobStore,
	cache *CacheService,
	metrics *MetricsService,
	uploadCfg config.UploadConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaultCT := uploadCfg.DefaultContentType
	if defaultCT == "" {
		defaultCT = "multipart/form-data"
	}
	return &ScheduleService{
		repo:               repo,
		embeddings:         embeddings,
		blobs:              blobs,
		cache:              cache,
		decoder:            multipart.NewDecoder(uploadCfg.MaxBodyBytes),
		metrics:            metrics,
		validator:          validate,
		logger:             logger,
		defaultContentType: defaultCT,
	}
}

// CreateScheduleRequest describes a manual event entry. Date values are
// strings because both the JSON and multipart clients send them as text.
type CreateScheduleRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	DateType    string `json:"date_type"`
	ISODate     string `json:"iso_date"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
	WeekOfMonth int    `json:"week_of_month"`
	Time        string `json:"time"`
	Semester    string `json:"semester"`
	UserType    string `json:"user_type"`
	UploadedBy  string `json:"uploaded_by"`
}

// UpdateScheduleRequest carries a partial merge; nil fields keep the
// stored value.
type UpdateScheduleRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	DateType    *string `json:"date_type"`
	ISODate     *string `json:"iso_date"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
	Month       *int    `json:"month"`
	Year        *int    `json:"year"`
	WeekOfMonth *int    `json:"week_of_month"`
	Time        *string `json:"time"`
	Semester    *string `json:"semester"`
	UserType    *string `json:"user_type"`
}

// ListScheduleRequest describes structured filter parameters.
type ListScheduleRequest struct {
	StartDate  *time.Time
	EndDate    *time.Time
	Surface    string
	Categories []string
	Semester   string
	Audience   string
	DateType   string
	ExamOnly   bool
	Limit      int
	Skip       int
}

// MaxBodyBytes is the upload body cap, exposed so the transport layer can
// reject oversized bodies before buffering them.
func (s *ScheduleService) MaxBodyBytes() int64 {
	return s.decoder.MaxBytes()
}

// CreateFromPayload dispatches on content type and creates one event.
// An empty or ambiguous content type falls back to the configured
// default, which mirrors what the primary mobile client actually sends.
func (s *ScheduleService) CreateFromPayload(ctx context.Context, contentType string, body []byte, uploadedBy string) (*models.Event, error) {
	contentType = s.resolveContentType(contentType)

	if strings.Contains(contentType, "application/json") {
		var req CreateScheduleRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed JSON payload")
		}
		req.UploadedBy = uploadedBy
		return s.Create(ctx, req, nil)
	}

	req, image, err := s.parseMultipartCreate(contentType, body)
	if err != nil {
		return nil, err
	}
	req.UploadedBy = uploadedBy
	return s.Create(ctx, req, image)
}

// Create validates the request, persists the event and attempts the
// embedding. Embedding failure never blocks the write.
func (s *ScheduleService) Create(ctx context.Context, req CreateScheduleRequest, image *multipart.Part) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	event, err := buildEvent(req)
	if err != nil {
		return nil, err
	}
	event.Source = sourceManual
	event.UploadedBy = req.UploadedBy

	if image != nil && s.blobs != nil {
		_, url, upErr := s.blobs.Upload(ctx, image.Data, image.Filename, image.ContentType, map[string]string{"event": event.Title})
		if upErr != nil {
			s.logger.Warn("image upload failed", zap.String("title", event.Title), zap.Error(upErr))
		} else {
			event.ImageURL = url
		}
	}

	event.Embedding = s.embeddings.EmbedEvent(ctx, event)

	if err := s.repo.Insert(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
	}
	s.invalidateListCache(ctx)
	return event, nil
}

// Update merges the incoming fields over the stored document and
// regenerates the embedding when any semantically relevant field changed.
func (s *ScheduleService) Update(ctx context.Context, id string, req UpdateScheduleRequest) (*models.Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, id)
	}

	before := event.SemanticFingerprint()
	if err := applyUpdate(event, req); err != nil {
		return nil, err
	}

	if event.SemanticFingerprint() != before {
		// A stale vector is a correctness bug, not a tolerable state:
		// on provider failure the old vector is dropped rather than kept.
		event.Embedding = s.embeddings.EmbedEvent(ctx, event)
	}

	if err := s.repo.Replace(ctx, event); err != nil {
		return nil, mapRepoError(err, id)
	}
	s.invalidateListCache(ctx)
	return event, nil
}

// Get returns one event by id.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, id)
	}
	return event, nil
}

// List executes a structured filter query, serving from cache when
// enabled.
func (s *ScheduleService) List(ctx context.Context, req ListScheduleRequest) ([]models.Event, error) {
	filter := buildFilter(req)
	key := listCacheKey(req)

	var cached []models.Event
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	events, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}

	_ = s.cache.Set(ctx, key, events, 0)
	return events, nil
}

// Delete removes one event; a missing id is reported distinctly.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoError(err, id)
	}
	s.invalidateListCache(ctx)
	return nil
}

// DeleteAll unconditionally removes every event.
func (s *ScheduleService) DeleteAll(ctx context.Context) (int64, error) {
	count, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedules")
	}
	s.invalidateListCache(ctx)
	return count, nil
}

// IngestSpreadsheet processes an uploaded CSV end to end: decode the
// multipart body, detect the schema, normalize every row and upsert each
// occurrence keyed by (title, date). Rows are processed sequentially so
// the reported counts are deterministic; a bad row is skipped with a
// warning, never fatal to the batch.
func (s *ScheduleService) IngestSpreadsheet(ctx context.Context, contentType string, body []byte, uploadedBy string) (*models.IngestSummary, error) {
	contentType = s.resolveContentType(contentType)

	boundary, err := multipart.Boundary(contentType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "upload must be multipart/form-data")
	}

	parts, err := s.decoder.Parse(body, boundary)
	if err != nil {
		if errors.Is(err, multipart.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed multipart body")
	}

	file := findSpreadsheetPart(parts)
	if file == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no spreadsheet file found in upload")
	}

	rows := ingest.SplitRows(string(file.Data))
	if len(rows) < 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "spreadsheet has no data rows")
	}

	fieldMap, err := ingest.DetectSchema(ingest.SplitLine(rows[0]))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadSchema.Code, appErrors.ErrBadSchema.Status, err.Error())
	}

	normalizer := ingest.NewNormalizer(0)
	summary := &models.IngestSummary{}

	for rowNum, row := range rows[1:] {
		summary.TotalProcessed++

		events, warnings := normalizer.NormalizeRow(fieldMap, ingest.SplitLine(row))
		for _, warning := range warnings {
			s.logger.Warn("spreadsheet row skipped or degraded",
				zap.Int("row", rowNum+2), zap.String("reason", warning))
		}
		if len(events) == 0 {
			summary.Skipped++
			if s.metrics != nil {
				s.metrics.RecordIngestRow("skipped")
			}
			continue
		}

		for i := range events {
			event := &events[i]
			event.Source = sourceUpload
			event.UploadedBy = uploadedBy
			event.Embedding = s.embeddings.EmbedEvent(ctx, event)

			inserted, err := s.repo.Upsert(ctx, event)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
					fmt.Sprintf("failed to store row %d (%s)", rowNum+2, event.Title))
			}
			if inserted {
				summary.Inserted++
				if s.metrics != nil {
					s.metrics.RecordIngestRow("inserted")
				}
			} else {
				summary.Updated++
				if s.metrics != nil {
					s.metrics.RecordIngestRow("updated")
				}
			}
		}
	}

	s.invalidateListCache(ctx)
	return summary, nil
}

// Export renders the filtered schedule list as CSV or PDF bytes.
func (s *ScheduleService) Export(ctx context.Context, req ListScheduleRequest, format string) ([]byte, string, string, error) {
	events, err := s.List(ctx, req)
	if err != nil {
		return nil, "", "", err
	}

	dataset := export.Dataset{
		Headers: []string{"Title", "Category", "Date", "End Date", "Time", "Semester", "Audience"},
	}
	for _, ev := range events {
		row := map[string]string{
			"Title":    ev.Title,
			"Category": ev.Category,
			"Date":     ev.DisplayDate().Format("2006-01-02"),
			"Time":     ev.Time,
			"Semester": string(ev.Semester),
			"Audience": string(ev.UserType),
		}
		if ev.EndDate != nil {
			row["End Date"] = ev.EndDate.Format("2006-01-02")
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	switch format {
	case "pdf":
		data, err := export.NewPDFExporter().Render(dataset, "School Calendar")
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render PDF")
		}
		return data, "schedule.pdf", "application/pdf", nil
	default:
		data, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render CSV")
		}
		return data, "schedule.csv", "text/csv", nil
	}
}

func (s *ScheduleService) resolveContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return s.defaultContentType
	}
	return contentType
}

func (s *ScheduleService) parseMultipartCreate(contentType string, body []byte) (CreateScheduleRequest, *multipart.Part, error) {
	var req CreateScheduleRequest

	boundary, err := multipart.Boundary(contentType)
	if err != nil {
		return req, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "request must be JSON or multipart/form-data")
	}

	parts, err := s.decoder.Parse(body, boundary)
	if err != nil {
		if errors.Is(err, multipart.ErrTooLarge) {
			return req, nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, "")
		}
		return req, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed multipart body")
	}

	var image *multipart.Part
	for i := range parts {
		part := parts[i]
		if part.Filename != "" && strings.HasPrefix(part.ContentType, "image/") {
			image = &parts[i]
			continue
		}
		value := string(part.Data)
		switch part.Name {
		case "title":
			req.Title = value
		case "description":
			req.Description = value
		case "category":
			req.Category = value
		case "dateType", "date_type":
			req.DateType = value
		case "isoDate", "iso_date", "date":
			req.ISODate = value
		case "startDate", "start_date":
			req.StartDate = value
		case "endDate", "end_date":
			req.EndDate = value
		case "month":
			fmt.Sscanf(value, "%d", &req.Month) //nolint:errcheck
		case "year":
			fmt.Sscanf(value, "%d", &req.Year) //nolint:errcheck
		case "weekOfMonth", "week_of_month":
			fmt.Sscanf(value, "%d", &req.WeekOfMonth) //nolint:errcheck
		case "time":
			req.Time = value
		case "semester":
			req.Semester = value
		case "userType", "user_type":
			req.UserType = value
		}
	}
	return req, image, nil
}

// buildEvent constructs the canonical event from a create request,
// enforcing that exactly the authoritative fields for the date type are
// present and deriving the display date from them.
func buildEvent(req CreateScheduleRequest) (*models.Event, error) {
	dateType := models.DateType(strings.TrimSpace(req.DateType))
	if dateType == "" {
		dateType = models.DateTypeDate
	}
	if !dateType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown date_type %q", req.DateType))
	}

	event := &models.Event{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		DateType:    dateType,
		Time:        strings.TrimSpace(req.Time),
	}
	if event.Time == "" {
		event.Time = "All Day"
	}
	if req.Semester != "" {
		sem, ok := ingest.NormalizeSemester(req.Semester)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown semester %q", req.Semester))
		}
		event.Semester = sem
	}
	if req.UserType != "" {
		if aud, ok := ingest.NormalizeAudience(req.UserType); ok {
			event.UserType = aud
		}
	}

	switch dateType {
	case models.DateTypeDate:
		d, ok := ingest.ParseDate(req.ISODate)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date events require a valid iso_date")
		}
		event.ISODate = &d

	case models.DateTypeRange:
		start, okStart := ingest.ParseDate(req.StartDate)
		end, okEnd := ingest.ParseDate(req.EndDate)
		if !okStart || !okEnd {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date_range events require valid start_date and end_date")
		}
		if end.Before(start) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be on or after start_date")
		}
		event.StartDate = &start
		event.EndDate = &end
		event.ISODate = &start

	case models.DateTypeMonthOnly:
		if req.Month < 1 || req.Month > 12 || req.Year <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "month_only events require month and year")
		}
		event.Month = req.Month
		event.Year = req.Year
		d := time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
		event.ISODate = &d

	case models.DateTypeWeekInMonth:
		if req.Month < 1 || req.Month > 12 || req.Year <= 0 || req.WeekOfMonth < 1 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "week_in_month events require week_of_month, month and year")
		}
		event.Month = req.Month
		event.Year = req.Year
		event.WeekOfMonth = req.WeekOfMonth
		d := time.Date(req.Year, time.Month(req.Month), ingest.ApproximateWeekDay(req.WeekOfMonth), 0, 0, 0, 0, time.UTC)
		event.ISODate = &d
	}

	return event, nil
}

// applyUpdate merges non-nil request fields into the stored event. A
// date type change clears the previous variant's fields before the new
// authoritative set is applied.
func applyUpdate(event *models.Event, req UpdateScheduleRequest) error {
	if req.Title != nil {
		event.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		event.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		event.Category = strings.TrimSpace(*req.Category)
	}
	if req.Time != nil {
		event.Time = strings.TrimSpace(*req.Time)
	}
	if req.Semester != nil {
		sem, ok := ingest.NormalizeSemester(*req.Semester)
		if !ok && *req.Semester != "" {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown semester %q", *req.Semester))
		}
		event.Semester = sem
	}
	if req.UserType != nil {
		aud, _ := ingest.NormalizeAudience(*req.UserType)
		event.UserType = aud
	}

	if req.DateType != nil && models.DateType(*req.DateType) != event.DateType {
		dt := models.DateType(*req.DateType)
		if !dt.Valid() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown date_type %q", *req.DateType))
		}
		event.DateType = dt
		event.ISODate = nil
		event.StartDate = nil
		event.EndDate = nil
		event.Month = 0
		event.Year = 0
		event.WeekOfMonth = 0
	}

	if req.ISODate != nil {
		d, ok := ingest.ParseDate(*req.ISODate)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid iso_date %q", *req.ISODate))
		}
		event.ISODate = &d
	}
	if req.StartDate != nil {
		d, ok := ingest.ParseDate(*req.StartDate)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid start_date %q", *req.StartDate))
		}
		event.StartDate = &d
	}
	if req.EndDate != nil {
		d, ok := ingest.ParseDate(*req.EndDate)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid end_date %q", *req.EndDate))
		}
		event.EndDate = &d
	}
	if req.Month != nil {
		event.Month = *req.Month
	}
	if req.Year != nil {
		event.Year = *req.Year
	}
	if req.WeekOfMonth != nil {
		event.WeekOfMonth = *req.WeekOfMonth
	}

	// Re-derive the display date for variants that compute it.
	switch event.DateType {
	case models.DateTypeRange:
		if event.StartDate == nil || event.EndDate == nil {
			return appErrors.Clone(appErrors.ErrValidation, "date_range events require start_date and end_date")
		}
		if event.EndDate.Before(*event.StartDate) {
			return appErrors.Clone(appErrors.ErrValidation, "end_date must be on or after start_date")
		}
		if event.ISODate == nil {
			event.ISODate = event.StartDate
		}
	case models.DateTypeMonthOnly:
		if event.Month < 1 || event.Month > 12 || event.Year <= 0 {
			return appErrors.Clone(appErrors.ErrValidation, "month_only events require month and year")
		}
		d := time.Date(event.Year, time.Month(event.Month), 1, 0, 0, 0, 0, time.UTC)
		event.ISODate = &d
	case models.DateTypeWeekInMonth:
		if event.Month < 1 || event.Month > 12 || event.Year <= 0 || event.WeekOfMonth < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "week_in_month events require week_of_month, month and year")
		}
		d := time.Date(event.Year, time.Month(event.Month), ingest.ApproximateWeekDay(event.WeekOfMonth), 0, 0, 0, 0, time.UTC)
		event.ISODate = &d
	default:
		if event.ISODate == nil {
			return appErrors.Clone(appErrors.ErrValidation, "date events require iso_date")
		}
	}

	return nil
}

func buildFilter(req ListScheduleRequest) models.EventFilter {
	filter := models.EventFilter{
		From:       req.StartDate,
		To:         req.EndDate,
		Surface:    models.Surface(req.Surface),
		Categories: req.Categories,
		Semester:   req.Semester,
		Audience:   models.Audience(strings.ToLower(req.Audience)),
		ExamOnly:   req.ExamOnly,
		Limit:      req.Limit,
		Skip:       req.Skip,
	}
	if req.DateType != "" {
		filter.DateType = models.DateType(req.DateType)
	}
	return filter
}

func listCacheKey(req ListScheduleRequest) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%v|%v|%s|%v|%s|%s|%s|%v|%d|%d",
		req.StartDate, req.EndDate, req.Surface, req.Categories,
		req.Semester, req.Audience, req.DateType, req.ExamOnly, req.Limit, req.Skip)
	return fmt.Sprintf("%s%x", listCachePrefix, h.Sum64())
}

func (s *ScheduleService) invalidateListCache(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, listCachePrefix+"*")
}

func findSpreadsheetPart(parts []multipart.Part) *multipart.Part {
	for i := range parts {
		if parts[i].Filename != "" && !strings.HasPrefix(parts[i].ContentType, "image/") {
			return &parts[i]
		}
	}
	for i := range parts {
		switch parts[i].Name {
		case "file", "csv", "spreadsheet":
			return &parts[i]
		}
	}
	return nil
}

func mapRepoError(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %s not found", id))
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "schedule store operation failed")
}
