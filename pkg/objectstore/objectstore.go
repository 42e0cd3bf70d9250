// Package objectstore is the Object Store Gateway (spec §2/§6): streamed
// get/put, presigned URLs, and bucket-ensure against an S3-compatible
// backend, wrapped with the teacher's circuit breaker and a client-side
// rate limiter so repeated storage outages fail fast instead of hanging a
// worker slot (spec §4.1 "Resilience").
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/time/rate"

	"github.com/flightdv/corepipeline/pkg/resilience"
)

// Gateway wraps an S3 client with the streamed get/put/presign/bucket-ensure
// operations the ingestion and visualization pipelines use.
type Gateway struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	bucket   string

	breaker *resilience.Breaker
	limiter *rate.Limiter
}

// Config describes how to reach the S3-compatible endpoint.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New builds a Gateway from Config. endpoint/credentials are read once at
// startup per spec §6.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	endpointURL := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpointURL)
		o.UsePathStyle = true
	})

	return &Gateway{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		breaker:  resilience.NewBreaker(resilience.DefaultBreakerOpts),
		limiter:  rate.NewLimiter(rate.Limit(50), 100),
	}, nil
}

// EnsureBucket creates the configured bucket if it does not already exist.
func (g *Gateway) EnsureBucket(ctx context.Context) error {
	return g.guard(ctx, func(ctx context.Context) error {
		_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(g.bucket)})
		if err == nil {
			return nil
		}
		_, err = g.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(g.bucket)})
		return err
	})
}

// Get streams an object's body to the caller. The returned ReadCloser must
// be closed by the caller.
func (g *Gateway) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	var out io.ReadCloser
	err := g.guard(ctx, func(ctx context.Context) error {
		resp, err := g.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(g.bucket), Key: aws.String(key)})
		if err != nil {
			return err
		}
		out = resp.Body
		return nil
	})
	return out, err
}

// Put streams length bytes from r to key with the given content type.
func (g *Gateway) Put(ctx context.Context, key string, r io.Reader, length int64, contentType string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	return g.guard(ctx, func(ctx context.Context) error {
		_, err := g.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(g.bucket),
			Key:           aws.String(key),
			Body:          r,
			ContentLength: aws.Int64(length),
			ContentType:   aws.String(contentType),
		})
		return err
	})
}

// Remove deletes an object, ignoring not-found.
func (g *Gateway) Remove(ctx context.Context, key string) error {
	return g.guard(ctx, func(ctx context.Context) error {
		_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(g.bucket), Key: aws.String(key)})
		return err
	})
}

// Stat returns an object's size, or an error if it does not exist.
func (g *Gateway) Stat(ctx context.Context, key string) (int64, error) {
	var size int64
	err := g.guard(ctx, func(ctx context.Context) error {
		resp, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(g.bucket), Key: aws.String(key)})
		if err != nil {
			return err
		}
		if resp.ContentLength != nil {
			size = *resp.ContentLength
		}
		return nil
	})
	return size, err
}

// PresignGet returns a time-limited GET URL for key.
func (g *Gateway) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := g.presign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(g.bucket), Key: aws.String(key)},
		s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// PresignPut returns a time-limited PUT URL for key.
func (g *Gateway) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := g.presign.PresignPutObject(ctx, &s3.PutObjectInput{Bucket: aws.String(g.bucket), Key: aws.String(key)},
		s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (g *Gateway) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

func (g *Gateway) guard(ctx context.Context, op func(context.Context) error) error {
	if g.breaker == nil {
		return op(ctx)
	}
	return g.breaker.Call(ctx, op)
}
