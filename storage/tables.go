package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

const (
	EdmBinary = "Edm.Binary"
	EdmInt32  = "Edm.Int32"

	// Binary properties are capped at 64 KiB, so documents are split across
	// numbered chunk properties of one entity.
	tableChunkSize = 64 * 1024
	tableMaxChunks = 15
)

// ErrDocumentTooLarge is returned when a document does not fit in a single
// table entity.
var ErrDocumentTooLarge = errors.New("document too large for table entity")

// TableStore keeps every document as one entity of an Azure Storage table,
// all in the same partition so batches can be submitted as a transaction.
type TableStore struct {
	table     *aztables.Client
	partition string
}

// NewTableStore creates a TableStore from a storage connection string.
func NewTableStore(connStr, table, partition string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	if partition == "" {
		partition = "chip-todo"
	}
	return &TableStore{table: svc.NewClient(table), partition: partition}, nil
}

// CreateTable creates the backing table, ignoring "already exists".
func (s *TableStore) CreateTable(ctx context.Context) error {
	_, err := s.table.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

func (s *TableStore) Load(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.table.GetEntity(ctx, s.partition, key, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get entity %s: %w", key, err)
	}
	return decodeDocumentEntity(resp.Value)
}

func (s *TableStore) Save(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	actions := make([]aztables.TransactionAction, 0, len(records))
	for _, r := range records {
		payload, err := encodeDocumentEntity(s.partition, r)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeInsertReplace,
			Entity:     payload,
		})
	}
	if _, err := s.table.SubmitTransaction(ctx, actions, nil); err != nil {
		return fmt.Errorf("submit transaction: %w", err)
	}
	return nil
}

func (s *TableStore) Close() error { return nil }

func chunkProperty(i int) string {
	return fmt.Sprintf("Chunk%02d", i)
}

func encodeDocumentEntity(partition string, r Record) ([]byte, error) {
	chunks := (len(r.Value) + tableChunkSize - 1) / tableChunkSize
	if chunks > tableMaxChunks {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrDocumentTooLarge, r.Key, len(r.Value))
	}
	ent := map[string]any{
		"PartitionKey":      partition,
		"RowKey":            r.Key,
		"Chunks":            chunks,
		"Chunks@odata.type": EdmInt32,
	}
	for i := 0; i < chunks; i++ {
		end := (i + 1) * tableChunkSize
		if end > len(r.Value) {
			end = len(r.Value)
		}
		ent[chunkProperty(i)] = r.Value[i*tableChunkSize : end]
		ent[chunkProperty(i)+"@odata.type"] = EdmBinary
	}
	return json.Marshal(ent)
}

func decodeDocumentEntity(data []byte) ([]byte, error) {
	var props map[string]json.RawMessage
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	var chunks int
	if raw, ok := props["Chunks"]; ok {
		if err := json.Unmarshal(raw, &chunks); err != nil {
			return nil, fmt.Errorf("decode chunk count: %w", err)
		}
	}
	out := []byte{}
	for i := 0; i < chunks; i++ {
		raw, ok := props[chunkProperty(i)]
		if !ok {
			return nil, fmt.Errorf("entity missing %s", chunkProperty(i))
		}
		var part []byte
		if err := json.Unmarshal(raw, &part); err != nil {
			return nil, fmt.Errorf("decode %s: %w", chunkProperty(i), err)
		}
		out = append(out, part...)
	}
	return out, nil
}
