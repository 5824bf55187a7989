package productmgmt

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (r *recordingS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if r.err != nil {
		return nil, r.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	r.inputs = append(r.inputs, in)
	r.bodies = append(r.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archive(t *testing.T) {
	client := &recordingS3{}
	archive := NewS3Archive(client, "docs-bucket")
	step := &WorkflowStep{ID: "step-1", StepType: StepProduct, ReferenceID: "GPP-0004"}
	doc := &Document{ID: "doc-1", DocumentType: DocumentReadme, Content: "# Wallet"}

	require.NoError(t, archive.Archive(context.Background(), step, doc))
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "docs-bucket", aws.ToString(in.Bucket))
	assert.Equal(t, "workflow/gpp-0004/doc-1.md", aws.ToString(in.Key))
	assert.Equal(t, "text/markdown; charset=utf-8", aws.ToString(in.ContentType))
	assert.Equal(t, map[string]string{"step-type": "product", "document-type": "readme"}, in.Metadata)
	assert.Equal(t, "# Wallet", client.bodies[0])

	assert.Equal(t, "workflow/step-2/doc-1.md", archive.Key(&WorkflowStep{ID: "step-2"}, doc))

	client.err = errors.New("access denied")
	err := archive.Archive(context.Background(), step, doc)
	assert.ErrorContains(t, err, "failed to archive document doc-1")
}

func TestSaveDocument_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.svc.archive = NewS3Archive(&recordingS3{err: errors.New("access denied")}, "docs-bucket")
	vision := f.create(t, f.alice, NewStep{StepType: StepVision, Title: "Archived"})

	doc, err := f.svc.SaveDocument(context.Background(), f.alice, vision.ID, DocumentSummary, "Summary", "Short")
	require.NoError(t, err)
	docs, err := f.svc.Documents(context.Background(), f.alice, vision.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
}
