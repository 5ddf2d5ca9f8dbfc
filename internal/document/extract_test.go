package document

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	assert.Equal(t, KindPDF, Detect("cv.bin", []byte("%PDF-1.7\n...")))
	assert.Equal(t, KindDOCX, Detect("cv.docx", []byte("PK\x03\x04rest")))
	assert.Equal(t, KindText, Detect("cv.txt", []byte("Jane Doe")))
	assert.Equal(t, KindText, Detect("", []byte("Jane Doe\nEngineer")))
	assert.Equal(t, Kind(""), Detect("cv.pdf", []byte("not a pdf")))
	assert.Equal(t, Kind(""), Detect("cv.zip", []byte("PK\x03\x04rest")))
	assert.Equal(t, Kind(""), Detect("photo.png", []byte("\x89PNG\r\n\x1a\n")))
}

func TestExtractText(t *testing.T) {
	text, err := Extract("cv.txt", []byte("  Jane Doe  \r\n\r\n\r\n\r\nGo engineer\x00\n"))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\n\nGo engineer", text)
}

func TestExtractErrors(t *testing.T) {
	_, err := Extract("cv.txt", []byte("   \n  "))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Extract("photo.png", []byte("\x89PNG\r\n\x1a\n"))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = NewExtractor(Limits{MaxBytes: 4}).Extract("cv.txt", []byte("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = Extract("cv.pdf", []byte("%PDF-garbage"))
	assert.Error(t, err)
}

func TestExtractMaxChars(t *testing.T) {
	text, err := NewExtractor(Limits{MaxChars: 5}).Extract("cv.txt", []byte("ééééééééé"))
	require.NoError(t, err)
	assert.Equal(t, "ééééé", text)
}

func TestDocxText(t *testing.T) {
	xml := `<w:body><w:p><w:r><w:t>Jane &amp; Co</w:t></w:r></w:p><w:p><w:r><w:t>Skills:</w:t><w:tab/><w:t>Go</w:t></w:r></w:p></w:body>`
	assert.Equal(t, "Jane & Co\nSkills:\tGo\n", docxText(xml))
}

func TestExtractDOCX(t *testing.T) {
	data := buildDocx(t, `<w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p><w:p><w:r><w:t>Platform engineer</w:t></w:r></w:p>`)

	text, err := Extract("cv.docx", data)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\nPlatform engineer", text)
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml":          `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body + `</w:body></w:document>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fakeGetter struct {
	body  string
	err   error
	input *s3.GetObjectInput
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3SourceFetch(t *testing.T) {
	getter := &fakeGetter{body: "cv bytes"}
	src := &S3Source{Client: getter, Bucket: "uploads", MaxBytes: 64}

	data, err := src.Fetch(context.Background(), "users/1/cv.pdf")
	require.NoError(t, err)
	assert.Equal(t, "cv bytes", string(data))
	require.NotNil(t, getter.input)
	assert.Equal(t, "uploads", *getter.input.Bucket)
	assert.Equal(t, "users/1/cv.pdf", *getter.input.Key)
}

func TestS3SourceFetchErrors(t *testing.T) {
	var nilSource *S3Source
	_, err := nilSource.Fetch(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotConfigured)

	src := &S3Source{Client: &fakeGetter{body: "0123456789"}, Bucket: "b", MaxBytes: 4}
	_, err = src.Fetch(context.Background(), "big")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = src.Fetch(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidKey)

	src = &S3Source{Client: &fakeGetter{err: errors.New("NoSuchKey")}, Bucket: "b"}
	_, err = src.Fetch(context.Background(), "missing")
	assert.ErrorContains(t, err, "NoSuchKey")
}

func TestNewS3SourceRequiresBucket(t *testing.T) {
	_, err := NewS3Source(context.Background(), S3Config{}, 0)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, S3Config{}.Enabled())
}
