package productmgmt

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver keeps a copy of saved documents outside the database.
type Archiver interface {
	Archive(ctx context.Context, step *WorkflowStep, doc *Document) error
}

// PutObjectAPI is the S3 call used by S3Archive.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes documents to
// s3://<bucket>/workflow/<reference id>/<document id>.md.
type S3Archive struct {
	client PutObjectAPI
	bucket string
}

// NewS3Archive creates an archive writing to bucket through client.
func NewS3Archive(client PutObjectAPI, bucket string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket}
}

// NewS3ArchiveFromEnv loads the default AWS configuration.
func NewS3ArchiveFromEnv(ctx context.Context, bucket, region string) (*S3Archive, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3Archive(s3.NewFromConfig(cfg), bucket), nil
}

// Key is the object key of doc.
func (a *S3Archive) Key(step *WorkflowStep, doc *Document) string {
	ref := step.ReferenceID
	if ref == "" {
		ref = step.ID
	}
	return "workflow/" + strings.ToLower(ref) + "/" + doc.ID + ".md"
}

// Archive implements Archiver.
func (a *S3Archive) Archive(ctx context.Context, step *WorkflowStep, doc *Document) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(step, doc)),
		Body:        strings.NewReader(doc.Content),
		ContentType: aws.String("text/markdown; charset=utf-8"),
		Metadata: map[string]string{
			"step-type":     string(step.StepType),
			"document-type": string(doc.DocumentType),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive document %s: %w", doc.ID, err)
	}
	return nil
}
