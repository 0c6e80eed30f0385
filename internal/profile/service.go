// Package profile はユーザープロフィールの参照・編集と月別完了数の集計を提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/rhythmflow/internal/model"
	"github.com/hitoshi/rhythmflow/internal/repository"
)

const (
	// MonthlyWindow は月別集計の対象月数（当月を含む）。
	MonthlyWindow = 6
	// DefaultMaxPhotoBytes はプロフィール写真の既定の最大サイズ。
	DefaultMaxPhotoBytes = 5 << 20
	// maxDisplayNameLength は表示名の最大文字数。
	maxDisplayNameLength = 50
	// photoPrefix はプロフィール写真の保存先プレフィックス。
	photoPrefix = "profile-photos"
)

// ErrStorageNotConfigured はオブジェクトストレージが未設定の場合のエラー。
var ErrStorageNotConfigured = errors.New("object storage is not configured")

// Uploader はオブジェクトストレージへのアップロード・削除インターフェース。
type Uploader interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, objectPath string) error
	// ObjectPath はUploadが返したURLからオブジェクトパスを取り出す。
	ObjectPath(publicURL string) (string, bool)
}

// Config はServiceの設定を表す。
type Config struct {
	// Location は月の境界を決める基準タイムゾーン。nilの場合はUTC。
	Location *time.Location
	// MaxPhotoBytes はアップロードできる写真の最大バイト数。0以下の場合はDefaultMaxPhotoBytes。
	MaxPhotoBytes int64
	// Now は現在時刻を返す。nilの場合はtime.Now。
	Now func() time.Time
}

// Service はプロフィールのサービス層。
type Service struct {
	users         repository.UserRepository
	completions   repository.CompletionRepository
	uploader      Uploader
	location      *time.Location
	maxPhotoBytes int64
	now           func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// uploaderがnilの場合、写真アップロードはSTORAGE_UNAVAILABLEを返す。
func NewService(
	users repository.UserRepository,
	completions repository.CompletionRepository,
	uploader Uploader,
	cfg Config,
) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	maxBytes := cfg.MaxPhotoBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPhotoBytes
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		users:         users,
		completions:   completions,
		uploader:      uploader,
		location:      loc,
		maxPhotoBytes: maxBytes,
		now:           now,
	}
}

// MaxPhotoBytes はアップロードできる写真の最大バイト数を返す。
func (s *Service) MaxPhotoBytes() int64 {
	return s.maxPhotoBytes
}

// Get はユーザーのプロフィールを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Update は表示名と写真URLを部分更新する。nilの項目は変更しない。
func (s *Service) Update(ctx context.Context, userID string, displayName, photoURL *string) (*model.User, error) {
	if displayName != nil {
		name := strings.TrimSpace(*displayName)
		if name == "" {
			return nil, model.NewValidationError("表示名を入力してください")
		}
		if utf8.RuneCountInString(name) > maxDisplayNameLength {
			return nil, model.NewValidationError("表示名が長すぎます")
		}
		displayName = &name
	}
	if photoURL != nil {
		u := strings.TrimSpace(*photoURL)
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
			return nil, model.NewValidationError("写真URLが不正です")
		}
		photoURL = &u
	}

	user, err := s.users.UpdateProfile(ctx, userID, displayName, photoURL)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UploadPhoto は写真を profile-photos/{userID}/{filename} に保存し、
// 公開URLをプロフィールの写真URLに設定する。
func (s *Service) UploadPhoto(ctx context.Context, userID, filename string, data []byte) (*model.User, error) {
	if len(data) == 0 {
		return nil, model.NewValidationError("写真が空です")
	}
	if int64(len(data)) > s.maxPhotoBytes {
		return nil, model.NewValidationError(fmt.Sprintf("写真は%dバイト以下にしてください", s.maxPhotoBytes))
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, model.NewValidationError("画像ファイルを指定してください")
	}
	if s.uploader == nil {
		return nil, model.NewStorageUnavailableError(ErrStorageNotConfigured)
	}

	current, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if current == nil {
		return nil, model.NewUserNotFoundError()
	}

	objectPath := PhotoPath(userID, filename)
	publicURL, err := s.uploader.Upload(ctx, objectPath, data, contentType)
	if err != nil {
		slog.Error("profile photo upload failed",
			slog.String("user_id", userID),
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageUnavailableError(err)
	}

	user, err := s.users.UpdateProfile(ctx, userID, nil, &publicURL)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	slog.Info("profile photo updated",
		slog.String("user_id", userID),
		slog.String("path", objectPath),
	)
	s.removePreviousPhoto(ctx, userID, current.PhotoURL, objectPath)
	return user, nil
}

// removePreviousPhoto は差し替え前の写真を削除する。失敗してもアップロードは成功扱い。
func (s *Service) removePreviousPhoto(ctx context.Context, userID string, previousURL *string, newPath string) {
	if previousURL == nil {
		return
	}
	oldPath, ok := s.uploader.ObjectPath(*previousURL)
	if !ok || oldPath == newPath {
		return
	}
	if err := s.uploader.Delete(ctx, oldPath); err != nil {
		slog.Warn("previous profile photo delete failed",
			slog.String("user_id", userID),
			slog.String("path", oldPath),
			slog.String("error", err.Error()),
		)
	}
}

// PhotoPath はプロフィール写真の保存先パスを返す。
// ファイル名はディレクトリ部分を除去し、使用できない文字を置き換える。
func PhotoPath(userID, filename string) string {
	return path.Join(photoPrefix, userID, cleanFilename(filename))
}

func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "/" || name == "." {
		return "photo"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.TrimLeft(b.String(), ".")
	if cleaned == "" {
		return "photo"
	}
	return cleaned
}

// MonthlyCompletions は当月を含む直近6か月の月別完了数を古い月から順に返す。
// 完了のない月も0件として含める。
func (s *Service) MonthlyCompletions(ctx context.Context, userID string) ([]model.MonthlyCount, error) {
	now := s.now().In(s.location)
	first := time.Date(now.Year(), now.Month()-(MonthlyWindow-1), 1, 0, 0, 0, 0, s.location)
	end := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, s.location)

	counts, err := s.completions.CountCompletedByMonth(ctx, userID,
		first.Format(model.DateLayout), end.Format(model.DateLayout))
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}

	buckets := make([]model.MonthlyCount, MonthlyWindow)
	for i := range buckets {
		month := first.AddDate(0, i, 0)
		key := month.Format("2006-01")
		buckets[i] = model.MonthlyCount{
			Month:  key,
			Label:  month.Month().String(),
			Habits: counts[key],
		}
	}
	return buckets, nil
}
