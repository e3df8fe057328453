package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "github.com/Wsquare5/notion-dashboard/config"
	"github.com/Wsquare5/notion-dashboard/internal/model"
	"github.com/Wsquare5/notion-dashboard/logger"
)

type snapshotRecord struct {
	Symbol          string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp       int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	SpotPrice       float64 `parquet:"name=spot_price, type=DOUBLE"`
	PerpPrice       float64 `parquet:"name=perp_price, type=DOUBLE"`
	MarkPrice       float64 `parquet:"name=mark_price, type=DOUBLE"`
	IndexPrice      float64 `parquet:"name=index_price, type=DOUBLE"`
	FundingRate     float64 `parquet:"name=funding_rate, type=DOUBLE"`
	OpenInterestUSD float64 `parquet:"name=open_interest_usd, type=DOUBLE"`
	SpotVolume      float64 `parquet:"name=spot_volume, type=DOUBLE"`
	PerpVolume      float64 `parquet:"name=perp_volume, type=DOUBLE"`
}

type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

// Writer archives the market snapshots of one run as a parquet file, kept
// locally and optionally mirrored to S3. The archive is an audit trail, so
// a failed flush degrades to a logged warning rather than failing the run.
type Writer struct {
	cfg      appconfig.ArchiveConfig
	s3Client *s3.Client
	log      *logger.Entry

	mu      sync.Mutex
	records []snapshotRecord
}

func NewWriter(ctx context.Context, cfg appconfig.ArchiveConfig, log *logger.Log) (*Writer, error) {
	w := &Writer{cfg: cfg, log: log.WithComponent("archive")}
	if cfg.S3Bucket == "" {
		return w, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	w.s3Client = s3.NewFromConfig(awsCfg)
	return w, nil
}

// Record buffers one snapshot for the run archive. Safe for concurrent use
// by fetch workers.
func (w *Writer) Record(snap *model.MarketSnapshot) {
	rec := snapshotRecord{
		Symbol:          snap.Symbol,
		Timestamp:       snap.FetchedAt.UnixMilli(),
		MarkPrice:       snap.MarkPrice,
		IndexPrice:      snap.IndexPrice,
		FundingRate:     snap.FundingRate,
		OpenInterestUSD: snap.OpenInterestUSD,
	}
	if snap.Spot != nil {
		rec.SpotPrice = snap.Spot.Price
		rec.SpotVolume = snap.Spot.Volume24h
	}
	if snap.Perp != nil {
		rec.PerpPrice = snap.Perp.Price
		rec.PerpVolume = snap.Perp.Volume24h
	}

	w.mu.Lock()
	w.records = append(w.records, rec)
	w.mu.Unlock()
}

// Flush writes the buffered snapshots as one parquet file keyed by run id
// and clears the buffer.
func (w *Writer) Flush(ctx context.Context, runID string) error {
	w.mu.Lock()
	records := w.records
	w.records = nil
	w.mu.Unlock()

	if len(records) == 0 {
		return nil
	}

	data, err := buildParquet(records)
	if err != nil {
		return fmt.Errorf("build run archive: %w", err)
	}

	date := time.Now().UTC().Format("2006-01-02")
	filename := fmt.Sprintf("%s.parquet", runID)

	if w.cfg.Dir != "" {
		dir := filepath.Join(w.cfg.Dir, date)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
			return fmt.Errorf("write run archive: %w", err)
		}
	}

	if w.s3Client != nil {
		key := filepath.ToSlash(filepath.Join(w.cfg.S3Prefix, fmt.Sprintf("date=%s", date), filename))
		uploadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		_, err := w.s3Client.PutObject(uploadCtx, &s3.PutObjectInput{
			Bucket:      aws.String(w.cfg.S3Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/octet-stream"),
		})
		if err != nil {
			return fmt.Errorf("upload run archive: %w", err)
		}
		w.log.WithFields(logger.Fields{"key": key, "records": len(records)}).Info("run archive uploaded")
	}

	w.log.WithFields(logger.Fields{"run_id": runID, "records": len(records), "bytes": len(data)}).Info("run archived")
	return nil
}

func buildParquet(records []snapshotRecord) ([]byte, error) {
	mem := newMemFile()
	pw, err := writer.NewParquetWriter(mem, new(snapshotRecord), 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mem.Bytes(), nil
}
