// Package blob implements remote.Remote over an S3 compatible bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/openmined/drivesync/internal/remote"
)

const (
	delimiter       = "/"
	defaultPageSize = 1000
)

type BlobClient struct {
	s3Client *s3.Client
	config   *S3BlobConfig
	pageSize int32
}

func NewBlobClient(s3Client *s3.Client, cfg *S3BlobConfig) *BlobClient {
	return &BlobClient{
		s3Client: s3Client,
		config:   cfg,
		pageSize: defaultPageSize,
	}
}

// NewBlobClientWithS3Config builds the S3 client. Static keys are used when
// both are set, otherwise the default AWS credential chain applies.
func NewBlobClientWithS3Config(ctx context.Context, cfg *S3BlobConfig) (*BlobClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// must stay buildable: LoadDefaultConfig applies AWS_CA_BUNDLE through
	// WithTransportOptions. No client timeout, transfers block until the
	// server resolves them.
	httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		tr.Proxy = http.ProxyFromEnvironment
		tr.MaxIdleConns = 16
		tr.IdleConnTimeout = 90 * time.Second
		tr.TLSHandshakeTimeout = 10 * time.Second
		tr.ExpectContinueTimeout = 1 * time.Second
		tr.ForceAttemptHTTP2 = true
	})

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewBlobClient(s3Client, cfg), nil
}

// ===================================================================================================

func (s *BlobClient) List(ctx context.Context, folderID, pageToken string) (*remote.Page, error) {
	prefix := folderPrefix(folderID)

	input := &s3.ListObjectsV2Input{
		Bucket:    &s.config.BucketName,
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
		MaxKeys:   aws.Int32(s.pageSize),
	}
	if pageToken != "" {
		input.ContinuationToken = aws.String(pageToken)
	}

	resp, err := s.s3Client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("blob: list %q: %w", prefix, wrapErr(err))
	}

	page := &remote.Page{
		Items: make([]*remote.Item, 0, len(resp.CommonPrefixes)+len(resp.Contents)),
	}
	if aws.ToBool(resp.IsTruncated) {
		page.NextPageToken = aws.ToString(resp.NextContinuationToken)
	}

	for _, cp := range resp.CommonPrefixes {
		sub := aws.ToString(cp.Prefix)
		page.Items = append(page.Items, &remote.Item{
			ID:       sub,
			Name:     path.Base(strings.TrimSuffix(sub, delimiter)),
			MimeType: remote.FolderMimeType,
			IsFolder: true,
		})
	}

	for _, obj := range resp.Contents {
		key := aws.ToString(obj.Key)
		// folder marker objects created by consoles
		if key == prefix || strings.HasSuffix(key, delimiter) {
			continue
		}
		item := objectToItem(key, obj)
		if s.config.SkipETagHash {
			item.ContentHash = ""
		}
		page.Items = append(page.Items, item)
	}

	return page, nil
}

// ===================================================================================================

func (s *BlobClient) OpenRange(ctx context.Context, id string, offset, length int64) (io.ReadCloser, int64, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &id,
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" && offset == 0 {
			return io.NopCloser(strings.NewReader("")), 0, nil
		}
		return nil, 0, fmt.Errorf("blob: get %q: %w", id, wrapErr(err))
	}

	total := aws.ToInt64(resp.ContentLength)
	if cr := aws.ToString(resp.ContentRange); cr != "" {
		if slash := strings.LastIndexByte(cr, '/'); slash >= 0 {
			if n, err := strconv.ParseInt(cr[slash+1:], 10, 64); err == nil {
				total = n
			}
		}
	}

	return resp.Body, total, nil
}

// ===================================================================================================

// CreateFile puts content at <parent prefix><name>. content should be an
// io.ReadSeeker when meta.Size is unknown so the SDK can sign the payload.
func (s *BlobClient) CreateFile(ctx context.Context, meta *remote.FileMeta, content io.Reader) (string, error) {
	key := folderPrefix(meta.ParentID) + meta.Name

	input := &s3.PutObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
		Body:   content,
	}
	if meta.Size > 0 {
		input.ContentLength = aws.Int64(meta.Size)
	}
	if meta.MimeType != "" {
		input.ContentType = aws.String(meta.MimeType)
	}

	if _, err := s.s3Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("blob: put %q: %w", key, wrapErr(err))
	}
	return key, nil
}

// ===================================================================================================

func objectToItem(key string, obj types.Object) *remote.Item {
	etag := strings.ReplaceAll(aws.ToString(obj.ETag), "\"", "")
	// multipart etags are not content md5s
	if strings.Contains(etag, "-") {
		etag = ""
	}

	return &remote.Item{
		ID:           key,
		Name:         path.Base(key),
		MimeType:     "application/octet-stream",
		ContentHash:  etag,
		Size:         aws.ToInt64(obj.Size),
		ModifiedTime: aws.ToTime(obj.LastModified),
	}
}

func folderPrefix(folderID string) string {
	if folderID == "" || folderID == delimiter {
		return ""
	}
	return strings.TrimSuffix(folderID, delimiter) + delimiter
}

func wrapErr(err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %v", remote.ErrNotFound, err)
	}
	return err
}

var _ remote.Remote = (*BlobClient)(nil)
