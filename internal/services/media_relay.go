package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/s3"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/whatsapp"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
)

// failedMediaTTL is how long a media id Graph permanently refused is not
// requested again.
const failedMediaTTL = 15 * time.Minute

// MediaRelay moves inbound WhatsApp media to a host Tiledesk agents can reach.
type MediaRelay struct {
	source  MediaSource
	assets  AssetUploader
	objects ObjectUploader // optional, replaces assets when set
	tmpDir  string
	failed  *cache.Cache
	now     func() time.Time
}

func NewMediaRelay(source MediaSource, assets AssetUploader, objects ObjectUploader, tmpDir string) *MediaRelay {
	return &MediaRelay{
		source:  source,
		assets:  assets,
		objects: objects,
		tmpDir:  tmpDir,
		failed:  cache.New(failedMediaTTL, failedMediaTTL),
		now:     time.Now,
	}
}

// CategoryFor returns the upload category of a WhatsApp message type.
func CategoryFor(messageType string) string {
	if messageType == whatsapp.TypeImage {
		return tiledesk.CategoryImages
	}
	return tiledesk.CategoryFiles
}

// Download fetches a media object into a temporary file. The caller owns the
// file and must release it with Release.
func (r *MediaRelay) Download(ctx context.Context, settings *models.ChannelSettings, media *whatsapp.MediaContent) (*models.MediaReference, error) {
	if _, found := r.failed.Get(media.ID); found {
		return nil, fmt.Errorf("%w: media %s failed recently", ErrMediaDownload, media.ID)
	}

	ref, err := r.download(ctx, settings, media)
	if err != nil {
		// transient failures stay retryable so a redelivered notification can succeed
		var statusErr *whatsapp.StatusError
		if errors.As(err, &statusErr) && statusErr.Permanent() {
			r.failed.SetDefault(media.ID, true)
		}
		log.Error().Err(err).Str("projectID", settings.ProjectID).Str("mediaID", media.ID).Msg("Unable to download media")
		return nil, fmt.Errorf("%w: %v", ErrMediaDownload, err)
	}
	return ref, nil
}

func (r *MediaRelay) download(ctx context.Context, settings *models.ChannelSettings, media *whatsapp.MediaContent) (*models.MediaReference, error) {
	info, err := r.source.GetMediaInfo(ctx, settings.WabToken, media.ID)
	if err != nil {
		return nil, err
	}

	mimeType := info.MimeType
	if mimeType == "" {
		mimeType = media.MimeType
	}

	file, err := os.CreateTemp(r.tmpDir, "wab-*"+extensionFor(media.Filename, mimeType))
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}

	ref := &models.MediaReference{
		RemoteID:  media.ID,
		LocalPath: file.Name(),
		MimeType:  mimeType,
		FileName:  media.Filename,
	}
	if ref.FileName == "" {
		ref.FileName = filepath.Base(file.Name())
	}

	n, err := r.source.DownloadMedia(ctx, settings.WabToken, info.URL, file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		r.Release(ref)
		return nil, err
	}

	log.Debug().Str("mediaID", media.ID).Int64("bytes", n).Str("path", ref.LocalPath).Msg("Media downloaded")
	return ref, nil
}

// Upload hosts a downloaded file and returns its public URL.
func (r *MediaRelay) Upload(ctx context.Context, settings *models.ChannelSettings, ref *models.MediaReference, category string) (string, error) {
	file, err := os.Open(ref.LocalPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMediaUpload, err)
	}
	defer file.Close()

	var url string
	if r.objects != nil {
		key := s3.GenerateKey(settings.ProjectID, category, ref.LocalPath, r.now())
		url, err = r.objects.Upload(ctx, key, file, ref.MimeType)
	} else {
		url, err = r.assets.Upload(ctx, settings, category, ref.FileName, file)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMediaUpload, err)
	}
	return url, nil
}

// Relay downloads then uploads a media object. The temporary file is removed
// on every path.
func (r *MediaRelay) Relay(ctx context.Context, settings *models.ChannelSettings, media *whatsapp.MediaContent, category string) (*models.MediaReference, error) {
	ref, err := r.Download(ctx, settings, media)
	if err != nil {
		return nil, err
	}
	defer r.Release(ref)

	url, err := r.Upload(ctx, settings, ref, category)
	if err != nil {
		log.Error().Err(err).Str("projectID", settings.ProjectID).Str("mediaID", media.ID).Msg("Unable to upload media")
		return nil, err
	}
	ref.HostedURL = url

	log.Info().Str("projectID", settings.ProjectID).Str("mediaID", media.ID).Str("url", url).Msg("Media relayed")
	return ref, nil
}

// Release removes the local copy of a media object.
func (r *MediaRelay) Release(ref *models.MediaReference) {
	if ref == nil || ref.LocalPath == "" {
		return
	}
	if err := os.Remove(ref.LocalPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", ref.LocalPath).Msg("Could not remove temporary media file")
	}
}

// preferredExtensions overrides mime.ExtensionsByType, which sorts alphabetically.
var preferredExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"audio/ogg":       ".ogg",
	"audio/mpeg":      ".mp3",
	"video/mp4":       ".mp4",
	"application/pdf": ".pdf",
}

func extensionFor(fileName, mimeType string) string {
	if ext := filepath.Ext(fileName); ext != "" {
		return ext
	}
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.TrimSpace(base)
	if ext, ok := preferredExtensions[base]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(base)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
