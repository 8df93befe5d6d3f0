package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
	"github.com/VAR-META-Tech/intent-verification/internal/retry"
)

func TestParseRepositoryURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{
			name:      "https url",
			url:       "https://github.com/golang/go",
			wantOwner: "golang",
			wantRepo:  "go",
		},
		{
			name:      "https url with .git",
			url:       "https://github.com/VAR-META-Tech/intent-verification.git",
			wantOwner: "VAR-META-Tech",
			wantRepo:  "intent-verification",
		},
		{
			name:      "ssh url",
			url:       "git@github.com:golang/go.git",
			wantOwner: "golang",
			wantRepo:  "go",
		},
		{
			name:    "other host",
			url:     "https://gitlab.com/golang/go",
			wantErr: true,
		},
		{
			name:    "pull request url",
			url:     "https://github.com/golang/go/pull/12345",
			wantErr: true,
		},
		{
			name:    "local path",
			url:     "/tmp/repo",
			wantErr: true,
		},
		{
			name:    "invalid owner",
			url:     "https://github.com/-bad/go",
			wantErr: true,
		},
		{
			name:    "empty url",
			url:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepositoryURL(tt.url)

			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRepositoryURL() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if owner != tt.wantOwner {
					t.Errorf("ParseRepositoryURL() owner = %v, want %v", owner, tt.wantOwner)
				}
				if repo != tt.wantRepo {
					t.Errorf("ParseRepositoryURL() repo = %v, want %v", repo, tt.wantRepo)
				}
			}
		})
	}
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	gh := github.NewClient(nil)
	u, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = u

	return New(gh).WithRetryPolicy(retry.Policy{
		MaxAttempts: 2,
		Delay:       time.Millisecond,
		MaxDelay:    time.Millisecond,
		Logger:      logging.Discard(),
	})
}

func TestCompareMakesSingleRequest(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/compare/aaa...bbb", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/o/r/compare/aaa...bbb?page=2>; rel="next"`, r.Host))
		fmt.Fprint(w, `{"base_commit":{"sha":"aaa111"},"merge_base_commit":{"sha":"aaa111"},
			"files":[{"filename":"a.go","status":"modified","additions":1,"deletions":2,"patch":"@@ -1 +1 @@"},
			{"filename":"b.go","status":"added","additions":3}]}`)
	})
	client := newTestClient(t, mux)

	cmp, err := client.Compare(context.Background(), "o", "r", "aaa", "bbb")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "aaa111", cmp.GetMergeBaseCommit().GetSHA())
	require.Len(t, cmp.Files, 2)
	assert.Equal(t, "a.go", cmp.Files[0].GetFilename())
	assert.Equal(t, 2, cmp.Files[0].GetDeletions())
	assert.Equal(t, "added", cmp.Files[1].GetStatus())
}

func TestCompareFilesReportsStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/compare/aaa...zzz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	client := newTestClient(t, mux)

	_, err := client.Compare(context.Background(), "o", "r", "aaa", "zzz")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestCompareFilesRetriesServerErrors(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/compare/aaa...bbb", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"message":"bad gateway"}`)
			return
		}
		fmt.Fprint(w, `{"files":[]}`)
	})
	client := newTestClient(t, mux)

	cmp, err := client.Compare(context.Background(), "o", "r", "aaa", "bbb")
	require.NoError(t, err)
	assert.Empty(t, cmp.Files)
	assert.Equal(t, 2, calls)
}

func TestFileContentDecodesBase64(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/contents/src/main.go", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bbb", r.URL.Query().Get("ref"))
		encoded := base64.StdEncoding.EncodeToString([]byte("package main\n"))
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","path":"src/main.go","content":%q}`, encoded)
	})
	client := newTestClient(t, mux)

	content, err := client.FileContent(context.Background(), "o", "r", "src/main.go", "bbb")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(content))
}

func TestFileContentReadsLargeFilesFromBlobs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/contents/data/big.sql", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"file","encoding":"none","size":2097152,"path":"data/big.sql","content":"","sha":"blob123"}`)
	})
	mux.HandleFunc("/repos/o/r/git/blobs/blob123", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "INSERT INTO t VALUES (1);\n")
	})
	client := newTestClient(t, mux)

	content, err := client.FileContent(context.Background(), "o", "r", "data/big.sql", "bbb")
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t VALUES (1);\n", string(content))
}

func TestFileContentReportsUnavailableBlob(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/contents/huge.bin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"file","encoding":"none","size":209715200,"path":"huge.bin","content":"","sha":"blob999"}`)
	})
	mux.HandleFunc("/repos/o/r/git/blobs/blob999", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"This API returns blobs up to 100 MB in size.","errors":[{"code":"too_large"}]}`)
	})
	client := newTestClient(t, mux)

	_, err := client.FileContent(context.Background(), "o", "r", "huge.bin", "bbb")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrContentUnavailable)
}
