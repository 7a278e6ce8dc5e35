package zmake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client wraps the S3 client used for artifact publishing. It speaks to
// any S3-compatible store; setting s3_account_id targets Cloudflare R2.
type S3Client struct {
	Client     *s3.Client
	BucketName string
}

// NewS3Client initializes the publish client from configuration values.
func NewS3Client(cfg *Config) (*S3Client, error) {
	endpoint := cfg.Values["s3_endpoint"]
	accountID := cfg.Values["s3_account_id"]
	accessKey := cfg.Values["s3_access_key"]
	secretKey := cfg.Values["s3_secret_key"]
	bucketName := cfg.Values["s3_bucket"]

	if endpoint == "" && accountID != "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	}
	if endpoint == "" || accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("publish credentials missing in configuration (s3_endpoint or s3_account_id, s3_access_key, s3_secret_key, s3_bucket)")
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: endpoint}, nil
	})

	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithRegion("auto"),
	}

	if Debug {
		options = append(options, awsconfig.WithClientLogMode(aws.LogSigning|aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load publish config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &S3Client{Client: client, BucketName: bucketName}, nil
}

// UploadLocalFile uploads a file from disk under the given key.
func (s *S3Client) UploadLocalFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	if strings.HasSuffix(key, ".zst") {
		contentType = "application/zstd"
	}

	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.BucketName),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
	})
	return err
}

// PublishArtifact uploads an artifact, and its detached signature when one
// sits next to it.
func (s *S3Client) PublishArtifact(ctx context.Context, artifactPath string) error {
	key := filepath.Base(artifactPath)

	colArrow.Print("-> ")
	colSuccess.Printf("Publishing %s\n", key)
	if err := s.UploadLocalFile(ctx, key, artifactPath); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	sigPath := artifactPath + ".sig"
	if _, err := os.Stat(sigPath); err == nil {
		if err := s.UploadLocalFile(ctx, key+".sig", sigPath); err != nil {
			return fmt.Errorf("failed to upload signature for %s: %w", key, err)
		}
	}
	return nil
}
