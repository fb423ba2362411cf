package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/dmitrijs2005/safepass/internal/logging"
	sc "github.com/dmitrijs2005/safepass/internal/server/config"
	"github.com/dmitrijs2005/safepass/internal/server/models"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

const avatarURLTTL = 15 * time.Minute

var avatarContentTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
	"image/gif":  {},
}

// AvatarUpload is a presigned upload target. After the client PUTs the image
// to URL it stores Key as its profile reference.
type AvatarUpload struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AvatarService hands out presigned S3 URLs for profile images so image
// bytes never pass through the API.
type AvatarService struct {
	config *sc.Config
	logger logging.Logger
}

func NewAvatarService(config *sc.Config, logger logging.Logger) *AvatarService {
	return &AvatarService{
		config: config,
		logger: logger.With("module", "avatar"),
	}
}

func avatarPrefix(identityID string) string {
	return "avatars/" + identityID + "/"
}

// NewAvatarKey returns a fresh object key under the identity's prefix.
func NewAvatarKey(identityID string) string {
	return avatarPrefix(identityID) + uuid.NewString()
}

func (s *AvatarService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// PresignUpload returns a presigned PUT for a new avatar of identity.
func (s *AvatarService) PresignUpload(ctx context.Context, identity *models.Identity, contentType string) (*AvatarUpload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if _, ok := avatarContentTypes[contentType]; !ok {
		return nil, invalidInput("unsupported image type %q", contentType)
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: object storage: %v", common.ErrorDependency, err)
	}

	bucket := s.config.S3Bucket
	key := NewAvatarKey(identity.ID)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &contentType,
	}, s3.WithPresignExpires(avatarURLTTL))
	if err != nil {
		return nil, fmt.Errorf("%w: presigning upload: %v", common.ErrorDependency, err)
	}

	s.logger.Info(ctx, "avatar upload presigned", "identity_id", identity.ID, "key", key)
	return &AvatarUpload{Key: key, URL: req.URL, ExpiresAt: time.Now().UTC().Add(avatarURLTTL)}, nil
}

// PresignDownload returns a presigned GET for the identity's current
// avatar. Identities whose profile does not reference an uploaded avatar
// yield common.ErrorNotFound.
func (s *AvatarService) PresignDownload(ctx context.Context, identity *models.Identity) (string, error) {
	key := identity.Profile
	if !strings.HasPrefix(key, avatarPrefix(identity.ID)) {
		return "", common.ErrorNotFound
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: object storage: %v", common.ErrorDependency, err)
	}

	bucket := s.config.S3Bucket
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(avatarURLTTL))
	if err != nil {
		return "", fmt.Errorf("%w: presigning download: %v", common.ErrorDependency, err)
	}

	return req.URL, nil
}
