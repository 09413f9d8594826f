package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/myarnwas/Library-Management-System-LMS/internal/model"
)

type Config struct {
	Dir         string `yaml:"dir" envconfig:"BACKUP_DIR" default:"backups"`
	S3Bucket    string `yaml:"s3Bucket" envconfig:"BACKUP_S3_BUCKET"`
	S3Region    string `yaml:"s3Region" envconfig:"BACKUP_S3_REGION" default:"us-east-1"`
	S3Endpoint  string `yaml:"s3Endpoint" envconfig:"BACKUP_S3_ENDPOINT"`
	S3AccessKey string `yaml:"s3AccessKey" envconfig:"BACKUP_S3_ACCESS_KEY"`
	S3SecretKey string `yaml:"s3SecretKey" envconfig:"BACKUP_S3_SECRET_KEY" json:"-"`
}

// Exporter writes a snapshot of the persisted state to the backup
// directory as a gzip'd JSON document, and mirrors it to S3-compatible
// storage when a bucket is configured.
type Exporter struct {
	cfg Config
	log *zap.Logger
}

func NewExporter(cfg Config, log *zap.Logger) *Exporter {
	return &Exporter{
		cfg: cfg,
		log: log.Named("backup"),
	}
}

func (e *Exporter) Export(ctx context.Context, snap model.Snapshot) (model.BackupResult, error) {
	data, err := encode(snap)
	if err != nil {
		return model.BackupResult{}, err
	}

	name := fmt.Sprintf("library-%s-%s.json.gz",
		snap.CreatedAt.Format("20060102T150405"), uuid.New())
	if err := os.MkdirAll(e.cfg.Dir, 0o755); err != nil {
		return model.BackupResult{}, errors.Wrap(err, "backup dir")
	}
	path := filepath.Join(e.cfg.Dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return model.BackupResult{}, errors.Wrap(err, "write backup")
	}
	e.log.Info("backup written", zap.String("path", path))

	res := model.BackupResult{Path: path}
	if e.cfg.S3Bucket != "" {
		key := "backups/" + name
		if err := e.upload(ctx, key, data); err != nil {
			return model.BackupResult{}, err
		}
		e.log.Info("backup uploaded", zap.String("bucket", e.cfg.S3Bucket), zap.String("key", key))
		res.Key = key
	}
	return res, nil
}

func encode(snap model.Snapshot) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	gz := gzip.NewWriter(buf)
	if err := jsoniter.ConfigFastest.NewEncoder(gz).Encode(snap); err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	if err := gz.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip close")
	}
	return buf.Bytes(), nil
}

func (e *Exporter) upload(ctx context.Context, key string, data []byte) error {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(e.cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			e.cfg.S3AccessKey,
			e.cfg.S3SecretKey,
			"",
		)))
	if err != nil {
		return errors.Wrap(err, "aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if e.cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(e.cfg.S3Endpoint)
		}
	})

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(e.cfg.S3Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return errors.Wrap(err, "put object")
}
