package repository

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectGetter is the part of the S3 client the fetcher uses.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher downloads s3://bucket/key URLs using the default AWS credential
// chain (environment, shared config, instance roles).
func S3Fetcher() Fetcher {
	return newS3Fetcher(func(ctx context.Context) (objectGetter, error) {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return s3.NewFromConfig(cfg), nil
	})
}

func newS3Fetcher(newClient func(context.Context) (objectGetter, error)) Fetcher {
	return NewFetcher("s3", SchemeMatcher("s3"), func(ctx context.Context, u *url.URL, dest string) error {
		bucket := u.Host
		key := strings.TrimPrefix(u.Path, "/")
		command := "GetObject " + bucket + "/" + key

		if bucket == "" || key == "" {
			return &FetchError{URL: u.String(), Command: command, Err: fmt.Errorf("s3 URL needs a bucket and a key")}
		}

		client, err := newClient(ctx)
		if err != nil {
			return &FetchError{URL: u.String(), Command: command, Err: err}
		}

		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return &FetchError{URL: u.String(), Command: command, Err: err}
		}
		defer out.Body.Close()

		return writeDownload(u, dest, out.Body)
	})
}
