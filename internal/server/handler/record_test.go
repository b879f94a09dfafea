package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

type memRecordStore struct {
	records []domain.DelegationRecord
	nextID  int
}

func (m *memRecordStore) Create(_ context.Context, rec domain.DelegationRecord) (domain.DelegationRecord, error) {
	for _, r := range m.records {
		if r.GameID == rec.GameID && domain.EqualAddress(r.Player, rec.Player) {
			return domain.DelegationRecord{}, domain.ErrAlreadyExists
		}
	}
	m.nextID++
	rec.ID = fmt.Sprintf("rec-%d", m.nextID)
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memRecordStore) ListByGame(_ context.Context, gameID uint64) ([]domain.DelegationRecord, error) {
	var out []domain.DelegationRecord
	for _, r := range m.records {
		if r.GameID == gameID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecordStore) CountByGame(_ context.Context, gameID uint64) (int64, error) {
	var n int64
	for _, r := range m.records {
		if r.GameID == gameID {
			n++
		}
	}
	return n, nil
}

func (m *memRecordStore) DeleteByGame(_ context.Context, gameID uint64) (int64, error) {
	var kept []domain.DelegationRecord
	var deleted int64
	for _, r := range m.records {
		if r.GameID == gameID {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return deleted, nil
}

func (m *memRecordStore) DeleteByID(_ context.Context, id string) error {
	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signedPayload(t *testing.T, delegator string) string {
	t.Helper()
	payload, err := domain.Delegation{
		Delegate:  "0x000000000000000000000000000000000000dEaD",
		Delegator: delegator,
		Authority: domain.RootAuthority,
		Caveats:   []domain.Caveat{{Enforcer: "0x00000000000000000000000000000000000000e1", Terms: "0x1b44"}},
		Salt:      "0x01",
		Signature: "0xdeadbeef",
	}.Encode()
	if err != nil {
		t.Fatalf("encode delegation: %v", err)
	}
	return payload
}

func createRecordBody(t *testing.T, gameID uint64, payload string) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{"gameId": gameID, "text": payload})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return string(body)
}

func TestCreateRecord(t *testing.T) {
	t.Parallel()

	store := &memRecordStore{}
	h := NewRecordHandler(store, testLogger())

	body := createRecordBody(t, 7, signedPayload(t, "0x00000000000000000000000000000000000000a1"))
	req := httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.CreateRecord(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body)
	}

	var rec domain.DelegationRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec.GameID != 7 {
		t.Errorf("game id = %d, want 7", rec.GameID)
	}
	if !domain.EqualAddress(rec.Player, "0x00000000000000000000000000000000000000a1") {
		t.Errorf("player = %q, want the delegator address", rec.Player)
	}
	if rec.ID == "" {
		t.Error("record id should be assigned")
	}
}

func TestCreateRecordRejectsBadPayloads(t *testing.T) {
	t.Parallel()

	unsigned, err := domain.Delegation{
		Delegate:  "0x000000000000000000000000000000000000dEaD",
		Delegator: "0x00000000000000000000000000000000000000a1",
		Authority: domain.RootAuthority,
		Salt:      "0x01",
	}.Encode()
	if err != nil {
		t.Fatalf("encode delegation: %v", err)
	}

	tests := []struct {
		name string
		body string
	}{
		{"invalid_json", `{"gameId": 7, "text":`},
		{"empty_payload", createRecordBody(t, 7, "")},
		{"not_a_delegation", createRecordBody(t, 7, "just some text")},
		{"unsigned_delegation", createRecordBody(t, 7, unsigned)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewRecordHandler(&memRecordStore{}, testLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.CreateRecord(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestCreateRecordDuplicateConflicts(t *testing.T) {
	t.Parallel()

	store := &memRecordStore{}
	h := NewRecordHandler(store, testLogger())
	body := createRecordBody(t, 7, signedPayload(t, "0x00000000000000000000000000000000000000a1"))

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.CreateRecord(rr, req)
		if rr.Code != want {
			t.Fatalf("attempt %d: status = %d, want %d", i+1, rr.Code, want)
		}
	}
}

func TestListRecordsByGame(t *testing.T) {
	t.Parallel()

	store := &memRecordStore{}
	h := NewRecordHandler(store, testLogger())

	for _, player := range []string{
		"0x00000000000000000000000000000000000000a1",
		"0x00000000000000000000000000000000000000a2",
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/records",
			strings.NewReader(createRecordBody(t, 7, signedPayload(t, player))))
		rr := httptest.NewRecorder()
		h.CreateRecord(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("seed create failed: %d", rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/records/game/7", nil)
	req.SetPathValue("gameId", "7")
	rr := httptest.NewRecorder()
	h.ListByGame(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var records []domain.DelegationRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}

func TestListRecordsEmptyGameReturnsEmptyArray(t *testing.T) {
	t.Parallel()

	h := NewRecordHandler(&memRecordStore{}, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/records/game/99", nil)
	req.SetPathValue("gameId", "99")
	rr := httptest.NewRecorder()
	h.ListByGame(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty JSON array", got)
	}
}

func TestDeleteRecordsByGame(t *testing.T) {
	t.Parallel()

	store := &memRecordStore{}
	h := NewRecordHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/records",
		strings.NewReader(createRecordBody(t, 7, signedPayload(t, "0x00000000000000000000000000000000000000a1"))))
	h.CreateRecord(httptest.NewRecorder(), req)

	del := httptest.NewRequest(http.MethodDelete, "/api/records/game/7", nil)
	del.SetPathValue("gameId", "7")
	rr := httptest.NewRecorder()
	h.DeleteByGame(rr, del)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp map[string]int64
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["deleted"] != 1 {
		t.Errorf("deleted = %d, want 1", resp["deleted"])
	}
	if len(store.records) != 0 {
		t.Errorf("store still holds %d records", len(store.records))
	}
}

func TestDeleteRecordByID(t *testing.T) {
	t.Parallel()

	store := &memRecordStore{}
	h := NewRecordHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/records",
		strings.NewReader(createRecordBody(t, 7, signedPayload(t, "0x00000000000000000000000000000000000000a1"))))
	rr := httptest.NewRecorder()
	h.CreateRecord(rr, req)

	var rec domain.DelegationRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/records/id/"+rec.ID, nil)
	del.SetPathValue("id", rec.ID)
	rr = httptest.NewRecorder()
	h.DeleteByID(rr, del)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	// A second delete of the same id is a 404.
	del = httptest.NewRequest(http.MethodDelete, "/api/records/id/"+rec.ID, nil)
	del.SetPathValue("id", rec.ID)
	rr = httptest.NewRecorder()
	h.DeleteByID(rr, del)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
