package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"schoolreports_go/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrFileType     = errors.New("file type not allowed")
)

// Rule describes what an upload slot accepts. A file passes the type check when its
// extension is listed or its MIME type starts with one of MIMEPrefixes.
type Rule struct {
	MaxSize      int64
	Extensions   []string
	MIMEPrefixes []string
}

// ImageRule accepts any image/* upload up to max bytes.
func ImageRule(max int64) Rule {
	return Rule{MaxSize: max, MIMEPrefixes: []string{"image/"}}
}

// AttachmentRule accepts ticket attachments up to max bytes.
func AttachmentRule(max int64) Rule {
	return Rule{
		MaxSize:    max,
		Extensions: []string{"jpg", "jpeg", "png", "webp", "pdf", "doc", "docx"},
		MIMEPrefixes: []string{
			"image/jpeg", "image/png", "image/webp", "application/pdf", "application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		},
	}
}

// Validate checks size and type of file against r.
func Validate(file *multipart.FileHeader, r Rule) error {
	if file == nil {
		return nil
	}
	if r.MaxSize > 0 && file.Size > r.MaxSize {
		return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrFileTooLarge, file.Filename, file.Size, r.MaxSize)
	}
	ext := fileExtension(file.Filename)
	for _, e := range r.Extensions {
		if ext == e {
			return nil
		}
	}
	mime := strings.ToLower(file.Header.Get("Content-Type"))
	if mime == "" || mime == "application/octet-stream" {
		mime = sniff(file)
	}
	for _, p := range r.MIMEPrefixes {
		if strings.HasPrefix(mime, p) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrFileType, file.Filename)
}

func sniff(file *multipart.FileHeader) string {
	src, err := file.Open()
	if err != nil {
		return ""
	}
	defer src.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(src, head)
	return strings.ToLower(http.DetectContentType(head[:n]))
}

// StorageService stores uploads in S3 and returns their public URLs.
type StorageService struct {
	client s3iface.S3API
	bucket string
	region string
}

// NewStorageService builds the S3 client from the app config.
func NewStorageService(cfg *config.Config) (*StorageService, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}
	return NewStorageServiceWithClient(s3.New(sess), cfg.S3BucketName, cfg.AWSRegion), nil
}

func NewStorageServiceWithClient(client s3iface.S3API, bucket, region string) *StorageService {
	return &StorageService{client: client, bucket: bucket, region: region}
}

// UploadFile stores file under folder/<userID>/yyyy/mm/dd/<id>.<ext>.
func (s *StorageService) UploadFile(file *multipart.FileHeader, folder string, userID uint) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %v", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %v", err)
	}

	ext := fileExtension(file.Filename)
	if ext == "" {
		ext = "bin"
	}
	now := time.Now()
	key := fmt.Sprintf("%s/%d/%d/%02d/%02d/%s.%s",
		folder, userID, now.Year(), now.Month(), now.Day(), uuid.New().String()[:16], ext)

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	_, err = s.client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %v", err)
	}
	return s.PublicURL(key), nil
}

func (s *StorageService) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// DeleteFile removes the object behind a URL returned by UploadFile.
func (s *StorageService) DeleteFile(fileURL string) error {
	key := extractKeyFromURL(fileURL)
	if key == "" {
		return fmt.Errorf("invalid file URL")
	}
	_, err := s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func fileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 1 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// extractKeyFromURL turns https://bucket.s3.region.amazonaws.com/path/to/file into path/to/file.
func extractKeyFromURL(url string) string {
	parts := strings.Split(url, ".amazonaws.com/")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
