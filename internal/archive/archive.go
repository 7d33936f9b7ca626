// Package archive persists generation records and golden-record datasets to
// object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querywright/querywright/internal/catalog"
	"github.com/querywright/querywright/internal/nl2sql"
	"github.com/querywright/querywright/internal/storage"
)

var ErrDatasetNotFound = errors.New("dataset not found")

type Archive struct {
	store storage.ObjectStore
	now   func() time.Time
}

func New(store storage.ObjectStore) *Archive {
	return &Archive{store: store, now: time.Now}
}

// ArchiveGeneration writes one JSON document per question.
func (a *Archive) ArchiveGeneration(ctx context.Context, record nl2sql.GenerationRecord) error {
	generatedAt := record.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = a.now()
	}
	key, err := storage.BuildGenerationPath(record.QuestionID, generatedAt)
	if err != nil {
		return fmt.Errorf("build generation path: %w", err)
	}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal generation record: %w", err)
	}
	if _, err := storage.PutBytes(ctx, a.store, key, body, storage.ContentTypeJSON); err != nil {
		return fmt.Errorf("store generation record: %w", err)
	}
	return nil
}

// DatasetRow is one golden record in an exported fine-tuning dataset.
type DatasetRow struct {
	ID             string `parquet:"id"`
	DBConnectionID string `parquet:"db_connection_id"`
	Question       string `parquet:"question"`
	SQLQuery       string `parquet:"sql_query"`
	CreatedAtMs    int64  `parquet:"created_at_ms"`
}

type ExportResult struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	Records int    `json:"records"`
	Bytes   int64  `json:"bytes"`
}

// ExportGoldenRecords writes records as a single Parquet file.
func (a *Archive) ExportGoldenRecords(ctx context.Context, connectionID string, records []catalog.GoldenRecord) (ExportResult, error) {
	key, err := storage.BuildDatasetPath(connectionID, a.now())
	if err != nil {
		return ExportResult{}, fmt.Errorf("build dataset path: %w", err)
	}

	rows := make([]DatasetRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, DatasetRow{
			ID:             record.ID,
			DBConnectionID: record.DBConnectionID,
			Question:       record.Question,
			SQLQuery:       record.SQLQuery,
			CreatedAtMs:    record.CreatedAt.UTC().UnixMilli(),
		})
	}

	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[DatasetRow](&buf)
	if _, err := writer.Write(rows); err != nil {
		return ExportResult{}, fmt.Errorf("write dataset rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ExportResult{}, fmt.Errorf("close dataset writer: %w", err)
	}

	info, err := storage.PutBytes(ctx, a.store, key, buf.Bytes(), storage.ContentTypeParquet)
	if err != nil {
		return ExportResult{}, fmt.Errorf("store dataset: %w", err)
	}
	size := info.Size
	if size == 0 {
		size = int64(buf.Len())
	}
	return ExportResult{Name: path.Base(key), Key: key, Records: len(rows), Bytes: size}, nil
}

// DatasetInfo describes one exported dataset file.
type DatasetInfo struct {
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	Bytes      int64     `json:"bytes"`
	ExportedAt time.Time `json:"exported_at,omitzero"`
}

// ListDatasets returns a connection's exports, newest first.
func (a *Archive) ListDatasets(ctx context.Context, connectionID string) ([]DatasetInfo, error) {
	prefix, err := storage.DatasetPrefix(connectionID)
	if err != nil {
		return nil, err
	}
	objects, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	datasets := make([]DatasetInfo, 0, len(objects))
	for _, object := range objects {
		datasets = append(datasets, datasetInfo(object))
	}
	sort.Slice(datasets, func(i, j int) bool { return datasets[i].Name > datasets[j].Name })
	return datasets, nil
}

// OpenDataset streams one export. The caller closes the reader.
func (a *Archive) OpenDataset(ctx context.Context, connectionID, name string) (io.ReadCloser, DatasetInfo, error) {
	key, err := storage.BuildDatasetKey(connectionID, name)
	if err != nil {
		return nil, DatasetInfo{}, fmt.Errorf("%w: %v", ErrDatasetNotFound, err)
	}
	body, object, err := a.store.Open(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, DatasetInfo{}, ErrDatasetNotFound
	}
	if err != nil {
		return nil, DatasetInfo{}, fmt.Errorf("open dataset: %w", err)
	}
	return body, datasetInfo(object), nil
}

// DeleteDataset removes one export; a name not in the listing is ErrDatasetNotFound.
func (a *Archive) DeleteDataset(ctx context.Context, connectionID, name string) error {
	datasets, err := a.ListDatasets(ctx, connectionID)
	if err != nil {
		return err
	}
	for _, dataset := range datasets {
		if dataset.Name != name {
			continue
		}
		if err := a.store.Delete(ctx, dataset.Key); err != nil {
			return fmt.Errorf("delete dataset: %w", err)
		}
		return nil
	}
	return ErrDatasetNotFound
}

func datasetInfo(object storage.ObjectInfo) DatasetInfo {
	return DatasetInfo{
		Name:       path.Base(object.Key),
		Key:        object.Key,
		Bytes:      object.Size,
		ExportedAt: object.LastModified,
	}
}
