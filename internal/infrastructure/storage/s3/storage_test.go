package s3

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

type fakeAPI struct {
	objects map[string][]byte
	tags    map[string][]types.Tag

	copyErr   error
	deletes   []string
	listPages [][]types.Object
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		objects: make(map[string][]byte),
		tags:    make(map[string][]types.Tag),
	}
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := 0
	if in.ContinuationToken != nil {
		page = 1
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if page < len(f.listPages) {
		out.Contents = f.listPages[page]
		if page+1 < len(f.listPages) {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String("next")
		}
	}
	return out, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	if f.copyErr != nil {
		return nil, f.copyErr
	}
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeAPI) PutObjectTagging(_ context.Context, in *s3.PutObjectTaggingInput, _ ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error) {
	f.tags[aws.ToString(in.Key)] = in.Tagging.TagSet
	return &s3.PutObjectTaggingOutput{}, nil
}

func (f *fakeAPI) GetObjectTagging(_ context.Context, in *s3.GetObjectTaggingInput, _ ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error) {
	return &s3.GetObjectTaggingOutput{TagSet: f.tags[aws.ToString(in.Key)]}, nil
}

func TestListFollowsPaginationAndStripsETagQuotes(t *testing.T) {
	fake := newFakeAPI()
	fake.listPages = [][]types.Object{
		{{Key: aws.String("a.pdf"), ETag: aws.String(`"etag-a"`), Size: aws.Int64(10)}},
		{{Key: aws.String("b.pdf"), ETag: aws.String(`"etag-b"`), Size: aws.Int64(20)}},
	}
	g := &Gateway{client: fake, bucket: "inbox"}

	infos, err := g.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("infos = %d, want both pages", len(infos))
	}
	if infos[0].Fingerprint != "etag-a" || infos[1].Fingerprint != "etag-b" {
		t.Fatalf("fingerprints = %q, %q", infos[0].Fingerprint, infos[1].Fingerprint)
	}
}

func TestGetMissingKeyIsPermanent(t *testing.T) {
	g := &Gateway{client: newFakeAPI(), bucket: "inbox"}
	_, err := g.Get(context.Background(), "nope.pdf")
	if !domain.IsKind(err, domain.ErrPermanentStorage) {
		t.Fatalf("err = %v, want permanent storage kind", err)
	}
}

func TestMoveCopiesThenDeletesSource(t *testing.T) {
	fake := newFakeAPI()
	fake.objects["invoice.pdf"] = []byte("%PDF")
	g := &Gateway{client: fake, bucket: "inbox"}

	if err := g.Move(context.Background(), "invoice.pdf", "Finance/invoice.pdf"); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if len(fake.deletes) != 1 || fake.deletes[0] != "invoice.pdf" {
		t.Fatalf("deletes = %v", fake.deletes)
	}
}

func TestMoveReplayAfterCrashIsNoOp(t *testing.T) {
	fake := newFakeAPI()
	fake.objects["Finance/invoice.pdf"] = []byte("%PDF")
	fake.copyErr = &types.NoSuchKey{}
	g := &Gateway{client: fake, bucket: "inbox"}

	if err := g.Move(context.Background(), "invoice.pdf", "Finance/invoice.pdf"); err != nil {
		t.Fatalf("replayed Move() error = %v", err)
	}
	if len(fake.deletes) != 0 {
		t.Fatalf("replay deleted destination: %v", fake.deletes)
	}
}

func TestTagMergesWithExistingSet(t *testing.T) {
	fake := newFakeAPI()
	fake.tags["cv.pdf"] = []types.Tag{
		{Key: aws.String("autopilot-category"), Value: aws.String("HR")},
	}
	g := &Gateway{client: fake, bucket: "inbox"}

	if err := g.Tag(context.Background(), "cv.pdf", "autopilot-review", "required"); err != nil {
		t.Fatalf("Tag() error = %v", err)
	}
	if len(fake.tags["cv.pdf"]) != 2 {
		t.Fatalf("tag set = %+v", fake.tags["cv.pdf"])
	}

	// Re-tagging the same key replaces, not duplicates.
	if err := g.Tag(context.Background(), "cv.pdf", "autopilot-review", "done"); err != nil {
		t.Fatalf("Tag() error = %v", err)
	}
	if len(fake.tags["cv.pdf"]) != 2 {
		t.Fatalf("tag set after overwrite = %+v", fake.tags["cv.pdf"])
	}
}

func TestThrottlingIsTransient(t *testing.T) {
	fake := newFakeAPI()
	fake.copyErr = &smithy.GenericAPIError{Code: "SlowDown"}
	g := &Gateway{client: fake, bucket: "inbox"}

	err := g.Move(context.Background(), "a.pdf", "b.pdf")
	if !domain.IsKind(err, domain.ErrTransientStorage) {
		t.Fatalf("err = %v, want transient storage kind", err)
	}
}
