package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mixaill76/log_analyzer/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func TestLiveStream_MergesPartialDocuments(t *testing.T) {
	mock, db := newMock(t)
	a := newLiveStream(testDeps())

	matched := ingest(t, a, db,
		`20240115143000123 INFO - LiveStreamHistory->{"streamId":"s1","vwc":10,"ttl":"Hi"}`,
		`20240115143500000 INFO - LiveStreamHistory->{"streamId":"s1","lc":"5","ttl":null}`,
		`20240115143000123 INFO - LiveStreamHistory->{"streamId":"s2","stTm":1705329000000}`,
		`20240115143000123 INFO - LiveStreamHistory->{"vwc":1}`,
		`20240115143000123 INFO - LiveStreamHistory->{"streamId":`,
		`20240115143000123 INFO - R r sendMessage - {}`,
	)
	assert.Equal(t, []bool{true, true, true, false, false, false}, matched)

	s1 := store.LiveStreamTable.Subset([]string{"streamid", "likecount", "title", "viewcount", "logtime"})
	s2 := store.LiveStreamTable.Subset([]string{"streamid", "starttime", "logtime"})

	second := time.Date(2024, 1, 15, 14, 35, 0, 0, time.UTC).UnixMilli()
	first := time.Date(2024, 1, 15, 14, 30, 0, 123_000_000, time.UTC).UnixMilli()

	mock.ExpectExec(store.MySQL{}.Upsert(s1, 1)).
		WithArgs("s1", int64(5), "Hi", int64(10), second).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(store.MySQL{}.Upsert(s2, 1)).
		WithArgs("s2", int64(1705329000000), first).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, a.Flush(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLiveStream_SameColumnsShareStatement(t *testing.T) {
	mock, db := newMock(t)
	a := newLiveStream(testDeps())

	ingest(t, a, db,
		`20240115143000000 INFO - LiveStreamHistory->{"streamId":"b","vwc":2}`,
		`20240115143000000 INFO - LiveStreamHistory->{"streamId":"a","vwc":1}`,
	)

	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC).UnixMilli()
	table := store.LiveStreamTable.Subset([]string{"streamid", "viewcount", "logtime"})
	mock.ExpectExec(store.MySQL{}.Upsert(table, 2)).
		WithArgs("a", int64(1), ts, "b", int64(2), ts).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, a.Flush(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestColumnValue(t *testing.T) {
	tests := []struct {
		name   string
		json   string
		text   bool
		want   any
		wantOK bool
	}{
		{"text string", `"DE"`, true, "DE", true},
		{"numeric string", `"42"`, false, int64(42), true},
		{"float string", `"1.5"`, false, 1.5, true},
		{"bad numeric string", `"abc"`, false, nil, false},
		{"integer", `7`, false, int64(7), true},
		{"float", `23.75`, false, 23.75, true},
		{"number as text", `7`, true, "7", true},
		{"true", `true`, false, int64(1), true},
		{"false as text", `false`, true, "false", true},
		{"null", `null`, true, nil, false},
		{"array as text", `["a","b"]`, true, `["a","b"]`, true},
		{"object numeric", `{}`, false, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := fastjson.Parse(tt.json)
			require.NoError(t, err)
			got, ok := columnValue(v, tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLiveStream_Purge(t *testing.T) {
	mock, db := newMock(t)
	a := newLiveStream(testDeps())

	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM analytics_live_stream WHERE logtime >= ? AND logtime < ?").
		WithArgs(start.UnixMilli(), end.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, a.Purge(context.Background(), db, start, end))
	assert.NoError(t, mock.ExpectationsWereMet())
}
