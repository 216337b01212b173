package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

const entryColumns = "i.local_id, i.remote_id, i.title, i.owner_id, i.url, i.tags, i.recorded_at, o.name, o.handle"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		entry       Entry
		url         sql.NullString
		tagsRaw     sql.NullString
		recordedRaw sql.NullString
		ownerName   sql.NullString
		ownerHandle sql.NullString
	)
	if err := scanner.Scan(
		&entry.LocalID,
		&entry.RemoteID,
		&entry.Title,
		&entry.OwnerID,
		&url,
		&tagsRaw,
		&recordedRaw,
		&ownerName,
		&ownerHandle,
	); err != nil {
		return nil, err
	}
	entry.URL = url.String
	entry.RecordedAt = parseTime(recordedRaw)
	entry.Owner = Owner{ID: entry.OwnerID, Name: ownerName.String, Handle: ownerHandle.String}
	if tagsRaw.Valid && tagsRaw.String != "" {
		if err := json.Unmarshal([]byte(tagsRaw.String), &entry.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", entry.LocalID, err)
		}
	}
	return &entry, nil
}
