package s3

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/config"
)

// Manager hosts relayed media on an S3 compatible bucket.
type Manager struct {
	client *s3.Client
	config config.S3Config
}

// NewManager builds the S3 client for the configured bucket.
func NewManager(cfg config.S3Config) (*Manager, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("S3 credentials not available - set S3_BUCKET, S3_ACCESS_KEY and S3_SECRET_KEY")
	}

	// Clean endpoint if it contains bucket name (common misconfiguration)
	endpoint := cfg.Endpoint
	if endpoint != "" && strings.Contains(endpoint, cfg.Bucket+".") {
		endpoint = strings.Replace(endpoint, cfg.Bucket+".", "", 1)
		log.Warn().
			Str("cleanedEndpoint", endpoint).
			Str("bucket", cfg.Bucket).
			Msg("Cleaned bucket name from S3 endpoint - endpoint should not contain bucket name")
	}
	cfg.Endpoint = endpoint

	// Force path-style for buckets with dots in their names to avoid SSL certificate issues
	if strings.Contains(cfg.Bucket, ".") {
		cfg.PathStyle = true
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("region", cfg.Region).
		Str("endpoint", endpoint).
		Bool("pathStyle", cfg.PathStyle).
		Msg("S3 client initialized")

	return &Manager{client: client, config: cfg}, nil
}

// GenerateKey builds the object key of a relayed media file.
func GenerateKey(projectID, category, fileName string, now time.Time) string {
	return fmt.Sprintf("projects/%s/%s/%s/%s",
		projectID,
		category,
		now.Format("2006/01/02"),
		path.Base(fileName),
	)
}

// Upload stores the object and returns its public URL.
func (m *Manager) Upload(ctx context.Context, key string, body io.Reader, mimeType string) (string, error) {
	contentType := mimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	input := &s3.PutObjectInput{
		Bucket:       aws.String(m.config.Bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=3600"),
	}
	if strings.HasPrefix(mimeType, "image/") || strings.HasPrefix(mimeType, "video/") || mimeType == "application/pdf" {
		input.ContentDisposition = aws.String("inline")
	}

	if _, err := m.client.PutObject(ctx, input); err != nil {
		log.Error().
			Str("key", key).
			Str("bucket", m.config.Bucket).
			Str("mimeType", mimeType).
			Err(err).
			Msg("Failed to upload file to S3")
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	url := PublicURL(m.config, key)
	log.Info().Str("key", key).Str("bucket", m.config.Bucket).Str("url", url).Msg("File successfully uploaded to S3")
	return url, nil
}

// PublicURL generates the public URL of an object.
func PublicURL(cfg config.S3Config, key string) string {
	if cfg.PublicURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(cfg.PublicURL, "/"), cfg.Bucket, key)
	}

	usePathStyle := cfg.PathStyle || strings.Contains(cfg.Bucket, ".")
	endpoint := cfg.Endpoint

	if endpoint == "" || strings.Contains(endpoint, "amazonaws.com") {
		if usePathStyle {
			return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", cfg.Region, cfg.Bucket, key)
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, cfg.Region, key)
	}

	if usePathStyle {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(endpoint, "/"), cfg.Bucket, key)
	}
	endpointClean := strings.TrimPrefix(endpoint, "https://")
	endpointClean = strings.TrimPrefix(endpointClean, "http://")
	return fmt.Sprintf("https://%s.%s/%s", cfg.Bucket, strings.TrimRight(endpointClean, "/"), key)
}
