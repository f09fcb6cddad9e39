package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saeid-a/CalibrateBack/internal/export"
	"github.com/saeid-a/CalibrateBack/internal/models"
)

const (
	ExportFormatText = "txt"
	ExportFormatDoc  = "doc"
)

// ExportFile is a rendered export ready to be sent or archived.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

type ArchivedExport struct {
	Key       string    `json:"key"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type ExportService struct {
	users   userReader
	logs    FoodLogStore
	storage ExportStorage
	now     func() time.Time
}

// NewExportService builds the service. storage may be nil, in which case
// Archive fails with ErrUnavailable.
func NewExportService(users userReader, logs FoodLogStore, storage ExportStorage) *ExportService {
	return &ExportService{users: users, logs: logs, storage: storage, now: time.Now}
}

// Render produces a client's food log in the requested format. Only staff
// and the client themselves may export.
func (s *ExportService) Render(ctx context.Context, actor Actor, clientEmail, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatText
	}
	if format != ExportFormatText && format != ExportFormatDoc {
		return nil, ErrInvalidInput
	}

	client, err := conversationAccess(ctx, s.users, actor, clientEmail)
	if err != nil {
		return nil, err
	}
	logs, err := s.logs.ListByClient(ctx, client.Email)
	if err != nil {
		return nil, storeError(err)
	}
	entries := export.FromLogs(logs)

	base := fmt.Sprintf("food-log-%s-%s", fileSafe(client.Email), s.now().UTC().Format(models.DateLayout))
	var buf bytes.Buffer
	file := &ExportFile{}
	switch format {
	case ExportFormatDoc:
		title := "Food log for " + displayName(client)
		if err := export.WriteDoc(&buf, title, entries); err != nil {
			return nil, err
		}
		file.Filename = base + ".doc"
		file.ContentType = export.DocContentType
	default:
		if err := export.WriteText(&buf, entries); err != nil {
			return nil, err
		}
		file.Filename = base + ".txt"
		file.ContentType = "text/plain; charset=utf-8"
	}
	file.Body = buf.Bytes()
	return file, nil
}

// Archive renders an export, stores it and returns a presigned link to it.
func (s *ExportService) Archive(ctx context.Context, actor Actor, clientEmail, format string) (*ArchivedExport, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("%w: export storage is not configured", ErrUnavailable)
	}
	file, err := s.Render(ctx, actor, clientEmail, format)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	key := path.Join("exports", fileSafe(models.NormalizeEmail(clientEmail)), id.String()+path.Ext(file.Filename))
	if err := s.storage.Upload(ctx, key, bytes.NewReader(file.Body), int64(len(file.Body)), file.ContentType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	link, err := s.storage.SignedURL(ctx, key, file.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &ArchivedExport{
		Key:       key,
		Filename:  file.Filename,
		URL:       link,
		CreatedAt: s.now().UTC(),
	}, nil
}

func displayName(user *models.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Email
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
