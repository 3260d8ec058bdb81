package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		BaseURL:     srv.URL,
		APIKey:      "anon-key",
		DeviceToken: "device-jwt",
		PCID:        "pc-1",
		UserID:      "user-1",
	}, zerolog.Nop())
	return c, srv
}

func TestUpdatePC(t *testing.T) {
	var gotPath, gotFilter, gotAuth string
	var gotRow PCRow
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFilter = r.URL.Query().Get("id")
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRow); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	row := PCRow{
		IsOnline:          true,
		UsageTodayMinutes: 42,
		CurrentNoiseDB:    57.5,
		LastHeartbeat:     time.Now().UTC(),
	}
	if err := c.UpdatePC(context.Background(), row); err != nil {
		t.Fatalf("UpdatePC: %v", err)
	}
	if gotPath != "/rest/v1/pcs" {
		t.Errorf("path = %q", gotPath)
	}
	if gotFilter != "eq.pc-1" {
		t.Errorf("id filter = %q, want eq.pc-1", gotFilter)
	}
	if gotAuth != "Bearer device-jwt" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotRow.UsageTodayMinutes != 42 || gotRow.CurrentNoiseDB != 57.5 {
		t.Errorf("row = %+v", gotRow)
	}
}

func TestUpsertEventsIsIdempotentMerge(t *testing.T) {
	var gotPrefer, gotConflict string
	var count int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		gotConflict = r.URL.Query().Get("on_conflict")
		var rows []EventRow
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		count = len(rows)
		w.WriteHeader(http.StatusCreated)
	}))

	rows := []EventRow{
		{PCID: "pc-1", Timestamp: time.Now().UTC(), Type: "strike", NoiseDB: 80},
		{PCID: "pc-1", Timestamp: time.Now().UTC(), Type: "block"},
	}
	if err := c.UpsertEvents(context.Background(), rows); err != nil {
		t.Fatalf("UpsertEvents: %v", err)
	}
	if gotPrefer != "resolution=merge-duplicates" {
		t.Errorf("prefer = %q", gotPrefer)
	}
	if gotConflict != "pc_id,timestamp,type" {
		t.Errorf("on_conflict = %q", gotConflict)
	}
	if count != 2 {
		t.Errorf("rows sent = %d, want 2", count)
	}
}

func TestUpsertEventsEmpty(t *testing.T) {
	called := false
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	if err := c.UpsertEvents(context.Background(), nil); err != nil {
		t.Fatalf("UpsertEvents: %v", err)
	}
	if called {
		t.Error("empty batch must not issue a request")
	}
}

func TestPendingCommands(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "eq.pending" {
			t.Errorf("status filter = %q", q.Get("status"))
		}
		if q.Get("order") != "created_at.asc" {
			t.Errorf("order = %q", q.Get("order"))
		}
		io.WriteString(w, `[
			{"id":"c1","pc_id":"pc-1","command":"add_time","payload":{"minutes":30},"status":"pending"},
			{"id":"c2","pc_id":"pc-1","command":"lock","status":"pending"}
		]`)
	}))

	cmds, err := c.PendingCommands(context.Background())
	if err != nil {
		t.Fatalf("PendingCommands: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2", len(cmds))
	}
	if cmds[0].Command != CommandAddTime {
		t.Errorf("first command = %q", cmds[0].Command)
	}
	var p MinutesPayload
	if err := json.Unmarshal(cmds[0].Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Minutes != 30 {
		t.Errorf("minutes = %d, want 30", p.Minutes)
	}
}

func TestFetchSettingsMissingRow(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	}))
	s, err := c.FetchSettings(context.Background())
	if err != nil {
		t.Fatalf("FetchSettings: %v", err)
	}
	if s != nil {
		t.Errorf("settings = %+v, want nil", s)
	}
}

func TestErrorStatusIncludesBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"JWT expired"}`)
	}))
	err := c.UpdatePC(context.Background(), PCRow{})
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if got := err.Error(); !strings.Contains(got, "401") || !strings.Contains(got, "JWT expired") {
		t.Errorf("error = %q", got)
	}
}

func TestPairingFlow(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/pairing/request":
			io.WriteString(w, `{"code":"483920"}`)
		case "/api/pairing/check":
			if r.URL.Query().Get("code") != "483920" {
				t.Errorf("code = %q", r.URL.Query().Get("code"))
			}
			io.WriteString(w, `{"status":"confirmed","pc_id":"pc-9","user_id":"user-9","device_jwt":"tok"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	code, err := c.RequestPairingCode(context.Background(), "kids-laptop")
	if err != nil {
		t.Fatalf("RequestPairingCode: %v", err)
	}
	if code != "483920" {
		t.Errorf("code = %q", code)
	}

	check, err := c.CheckPairing(context.Background(), code)
	if err != nil {
		t.Fatalf("CheckPairing: %v", err)
	}
	if check.Status != PairingConfirmed || check.PCID != "pc-9" || check.DeviceToken != "tok" {
		t.Errorf("check = %+v", check)
	}
}
