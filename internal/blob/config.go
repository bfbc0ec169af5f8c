package blob

import "errors"

var ErrNoBucket = errors.New("blob: bucket name missing")

// S3BlobConfig locates the bucket that plays the remote tree. Folder ids are
// key prefixes ending in "/"; the empty id is the bucket root.
type S3BlobConfig struct {
	BucketName string
	Region     string
	AccessKey  string
	SecretKey  string
	Endpoint   string

	// SkipETagHash reports every object without a content hash. Required for
	// SSE-KMS and SSE-C buckets, whose ETags are not content md5s.
	SkipETagHash bool
}

func (c *S3BlobConfig) Validate() error {
	if c.BucketName == "" {
		return ErrNoBucket
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	return nil
}
