package tracker

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	log "github.com/sirupsen/logrus"

	"chip-todo/domain"
	"chip-todo/storage"
)

//go:embed schema/import.json
var importSchema []byte

// Backup is the transport document written by Export and read by Import.
type Backup struct {
	Data       *domain.Data           `json:"data"`
	History    *[]domain.HistoryEntry `json:"history"`
	Meetings   *[]domain.Meeting      `json:"meetings,omitempty"`
	ExportedAt time.Time              `json:"exportedAt"`
}

// Codec exports and imports the whole tracker state.
type Codec struct {
	store  *Store
	schema *jsonschema.Schema
}

func NewCodec(store *Store) (*Codec, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("import.json", bytes.NewReader(importSchema)); err != nil {
		return nil, fmt.Errorf("load import schema: %w", err)
	}
	schema, err := compiler.Compile("import.json")
	if err != nil {
		return nil, fmt.Errorf("compile import schema: %w", err)
	}
	return &Codec{store: store, schema: schema}, nil
}

// Export renders the entity document, the history log and the meetings as
// one indented JSON document.
func (c *Codec) Export(ctx context.Context) ([]byte, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	history, err := s.historyLocked(ctx)
	if err != nil {
		return nil, err
	}
	meetings, err := s.meetingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	data := s.data.Clone()
	doc := Backup{
		Data:       &data,
		History:    &history,
		Meetings:   &meetings,
		ExportedAt: s.now(),
	}
	out, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	return out, nil
}

// Import replaces the sections present in raw. Either every present section
// is applied or, on any failure, none is.
func (c *Codec) Import(ctx context.Context, raw []byte) bool {
	doc, err := c.decode(raw)
	if err != nil {
		log.WithError(err).Warn("import rejected")
		return false
	}

	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []storage.Record
	if doc.History != nil {
		rec, err := encode(HistoryKey, *doc.History)
		if err != nil {
			log.WithError(err).Error("import failed")
			return false
		}
		records = append(records, rec)
	}
	if doc.Meetings != nil {
		rec, err := encode(MeetingsKey, *doc.Meetings)
		if err != nil {
			log.WithError(err).Error("import failed")
			return false
		}
		records = append(records, rec)
	}

	if doc.Data != nil {
		err = s.commitLocked(ctx, *doc.Data, records...)
	} else if len(records) > 0 {
		err = s.backend.Save(ctx, records...)
	}
	if err != nil {
		log.WithError(err).Error("import failed")
		return false
	}
	log.WithFields(log.Fields{
		"data":     doc.Data != nil,
		"history":  doc.History != nil,
		"meetings": doc.Meetings != nil,
	}).Info("backup imported")
	return true
}

// decode validates raw against the import schema and normalizes loosely typed
// progress values before decoding into a Backup.
func (c *Codec) decode(raw []byte) (Backup, error) {
	var tree any
	if err := sonic.ConfigStd.Unmarshal(raw, &tree); err != nil {
		return Backup{}, fmt.Errorf("parse: %w", err)
	}
	if err := c.schema.Validate(tree); err != nil {
		return Backup{}, fmt.Errorf("validate: %w", err)
	}
	root := tree.(map[string]any)
	if data, ok := root["data"].(map[string]any); ok {
		normalizeTasks(data["tasks"])
	}
	if history, ok := root["history"].([]any); ok {
		for _, h := range history {
			if entry, ok := h.(map[string]any); ok {
				normalizeTasks(entry["tasks"])
			}
		}
	}
	clean, err := sonic.ConfigStd.Marshal(root)
	if err != nil {
		return Backup{}, fmt.Errorf("re-encode: %w", err)
	}
	var doc Backup
	if err := sonic.ConfigStd.Unmarshal(clean, &doc); err != nil {
		return Backup{}, fmt.Errorf("decode: %w", err)
	}
	if doc.Data != nil {
		doc.Data.Normalize()
		if doc.Data.Current().IsZero() {
			def := domain.DefaultData()
			doc.Data.CurrentWeek, doc.Data.CurrentYear = def.CurrentWeek, def.CurrentYear
		}
		fillTaskDefaults(doc.Data.Tasks)
	}
	if doc.History != nil {
		for i := range *doc.History {
			fillTaskDefaults((*doc.History)[i].Tasks)
		}
	}
	return doc, nil
}

func normalizeTasks(v any) {
	tasks, ok := v.([]any)
	if !ok {
		return
	}
	for _, t := range tasks {
		task, ok := t.(map[string]any)
		if !ok {
			continue
		}
		task["progress"] = domain.ClampProgress(domain.ParseProgress(task["progress"]))
	}
}

func fillTaskDefaults(tasks []domain.Task) {
	for i := range tasks {
		if tasks[i].Status == "" {
			tasks[i].Status = domain.StatusPending
		}
		if tasks[i].Priority == "" {
			tasks[i].Priority = domain.PriorityMedium
		}
	}
}

// BackupFilename names an export file after the day it was taken.
func BackupFilename(now time.Time) string {
	return "chip-todo-backup-" + now.Format("2006-01-02") + ".json"
}
