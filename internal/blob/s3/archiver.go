package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// report is the JSON document written for each settled game: the settlement
// outcome plus the delegation records it was redeemed from.
type report struct {
	Settlement domain.Settlement         `json:"settlement"`
	Records    []domain.DelegationRecord `json:"delegationRecords"`
}

// Archiver implements domain.Archiver by serializing a settled game's report
// to JSON and uploading it under settlements/{gameID}/.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver writing through the given BlobWriter.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, audit: audit}
}

// ArchiveSettlement uploads the settlement report and records the archival in
// the audit log.
func (a *Archiver) ArchiveSettlement(ctx context.Context, settlement domain.Settlement, records []domain.DelegationRecord) error {
	doc := report{Settlement: settlement, Records: records}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("s3blob: marshal settlement report for game %d: %w", settlement.GameID, err)
	}

	path := settlementPath(settlement)
	if err := a.writer.Put(ctx, path, &buf, "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive settlement for game %d: %w", settlement.GameID, err)
	}

	if err := a.audit.Log(ctx, "archive.settlement", map[string]any{
		"path":    path,
		"game_id": settlement.GameID,
		"winner":  settlement.Winner,
		"records": len(records),
	}); err != nil {
		return fmt.Errorf("s3blob: archive settlement audit log: %w", err)
	}
	return nil
}

// settlementPath builds the S3 key for a settlement report:
//
//	settlements/{gameID}/{settledAt}.json
func settlementPath(s domain.Settlement) string {
	return fmt.Sprintf("settlements/%d/%s.json", s.GameID, s.SettledAt.UTC().Format("2006-01-02T15-04-05Z"))
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
