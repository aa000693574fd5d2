package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "geo:Siam", []byte(`{"latitude":13.74}`)))
	got, err := s.Get(ctx, "geo:Siam")
	require.NoError(t, err)
	require.JSONEq(t, `{"latitude":13.74}`, string(got))

	require.NoError(t, s.Set(ctx, "geo:Siam", []byte("v2")))
	got, err = s.Get(ctx, "geo:Siam")
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))

	require.NoError(t, s.Delete(ctx, "geo:Siam"))
	_, err = s.Get(ctx, "geo:Siam")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLite(":memory:", "geo-agent")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestSQLiteNamespacesAreIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a, err := OpenSQLite(":memory:", "a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := NewSQLite(a.db, "b")
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, "k", []byte("from-a")))
	_, err = b.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	type pair struct{ A, B int }
	var out pair
	found, err := GetJSON(ctx, s, "p", &out)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, SetJSON(ctx, s, "p", pair{A: 1, B: 2}))
	found, err = GetJSON(ctx, s, "p", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pair{A: 1, B: 2}, out)
}

// fakeRedis answers the subset of Upstash REST commands the store issues.
func fakeRedis(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	data := map[string]string{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		key, _ := cmd[1].(string)
		switch cmd[0] {
		case "GET":
			v, ok := data[key]
			if !ok {
				fmt.Fprint(w, `{"result":null}`)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": v})
		case "SET":
			data[key], _ = cmd[2].(string)
			fmt.Fprint(w, `{"result":"OK"}`)
		case "DEL":
			delete(data, key)
			fmt.Fprint(w, `{"result":1}`)
		default:
			fmt.Fprint(w, `{"error":"unknown command"}`)
		}
	}))
}

func TestUpstashStore(t *testing.T) {
	t.Parallel()

	server := fakeRedis(t)
	t.Cleanup(server.Close)

	s, err := NewUpstash(UpstashConfig{URL: server.URL, Token: "token"}, WithHTTPClient(server.Client()), WithKeyPrefix("geo:"))
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestUpstashStoreSendsTTL(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotCommand)
		fmt.Fprint(w, `{"result":"OK"}`)
	}))
	t.Cleanup(server.Close)

	s, err := NewUpstash(UpstashConfig{URL: server.URL, Token: "token"}, WithHTTPClient(server.Client()), WithTTL(1500*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "k", []byte("v")))

	require.Len(t, gotCommand, 5)
	require.Equal(t, "trendgeo:k", gotCommand[1])
	require.Equal(t, "EX", gotCommand[3])
	require.EqualValues(t, 2, gotCommand[4])
}

func TestNewUpstashValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := NewUpstash(UpstashConfig{Token: "token"})
	require.Error(t, err)
	_, err = NewUpstash(UpstashConfig{URL: "https://example.upstash.io"})
	require.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Driver: "mongo"}, "ns")
	require.Error(t, err)

	s, err := Open(context.Background(), Config{}, "ns")
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)
}
