package storage

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rowjay/mybak/internal/cryptoutil"
)

// EncryptedSuffix is appended to object keys of encrypted uploads.
const EncryptedSuffix = ".enc"

type S3 struct {
	Client *minio.Client
	Bucket string
	Prefix string
	Key    []byte
}

func NewS3(endpoint, region, bucket, accessKey, secretKey, sessionToken string, useSSL, forcePathStyle, insecure bool) (*S3, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	lookup := minio.BucketLookupDNS
	if forcePathStyle {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, sessionToken),
		Secure:       useSSL,
		Region:       region,
		Transport:    transport,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, err
	}
	return &S3{Client: client, Bucket: bucket}, nil
}

// ObjectKey maps an artifact to its mirror key: <prefix>/<kind>/<name>.
func (s *S3) ObjectKey(kind, name string) string {
	key := path.Join(strings.Trim(s.Prefix, "/"), kind, name)
	if len(s.Key) > 0 {
		key += EncryptedSuffix
	}
	return key
}

func (s *S3) Upload(ctx context.Context, kind, name string, reader io.Reader, size int64) error {
	if len(s.Key) > 0 {
		enc, err := cryptoutil.EncryptReader(reader, s.Key)
		if err != nil {
			return err
		}
		reader = enc
		size = -1
	}
	opts := minio.PutObjectOptions{UserMetadata: map[string]string{"mybak-kind": kind}}
	_, err := s.Client.PutObject(ctx, s.Bucket, s.ObjectKey(kind, name), reader, size, opts)
	return err
}

func (s *S3) Delete(ctx context.Context, kind, name string) error {
	err := s.Client.RemoveObject(ctx, s.Bucket, s.ObjectKey(kind, name), minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil
	}
	return err
}
