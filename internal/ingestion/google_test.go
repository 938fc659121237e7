package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

type staticClients struct {
	client *http.Client
	err    error
}

func (s staticClients) Client(context.Context, string) (*http.Client, error) {
	return s.client, s.err
}

func newSheetsServer(t *testing.T, appended *[][]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
			assert.Equal(t, "USER_ENTERED", r.URL.Query().Get("valueInputOption"))
			var body struct {
				Values [][]interface{} `json:"values"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			*appended = append(*appended, body.Values...)
			_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1","updates":{"updatedRange":"Journal!A3:H3"}}`))
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/values/"):
			_, _ = w.Write([]byte(`{"range":"Journal!A1:H3","values":[
				["user_id","ticker","position_type","pnl","entry","exit","notes","links"],
				["u1","NVDA","long","150","2025-11-01T09:30:00Z","2025-11-01T15:45:00Z","","https://a"],
				["u2","AAPL","short","-20","2025-11-02T09:30:00Z","2025-11-02T10:00:00Z","scalp"]
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestSheetsJournal_AppendAndList(t *testing.T) {
	var appended [][]interface{}
	srv := newSheetsServer(t, &appended)
	defer srv.Close()

	journal := NewSheetsJournal(staticClients{client: srv.Client()}, option.WithEndpoint(srv.URL+"/"))

	entry := EntryFromDraft(testDraft(), nil, time.Now())
	rowID, err := journal.AppendEntry(context.Background(), models.Destination{SheetID: "sheet-1"}, entry)
	require.NoError(t, err)
	assert.Equal(t, "Journal!A3:H3", rowID)
	require.Len(t, appended, 1)
	assert.Equal(t, "NVDA", appended[0][1])

	entries, err := journal.ListEntries(context.Background(), store.JournalFilter{UserID: "u1", SheetID: "sheet-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Journal!A2", entries[0].RowID)
	assert.Equal(t, []string{"https://a"}, entries[0].Links)
}

func TestSheetsJournal_RequiresSheetAndConnection(t *testing.T) {
	journal := NewSheetsJournal(staticClients{err: apperrors.ErrNotConnected})

	_, err := journal.AppendEntry(context.Background(), models.Destination{}, models.JournalEntry{UserID: "u1"})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	_, err = journal.AppendEntry(context.Background(), models.Destination{SheetID: "s"}, models.JournalEntry{UserID: "u1"})
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestDriveUploader_NotConnected(t *testing.T) {
	uploader := NewDriveUploader(staticClients{err: apperrors.ErrNotConnected}, "")
	_, err := uploader.Upload(context.Background(), "u1", File{Name: "a.png"})
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Journal", sheetName(""))
	assert.Equal(t, "Trades", sheetName("Trades!B2"))
	assert.Equal(t, "", sheetName("A1"))
}
