package analyzer

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VAR-META-Tech/intent-verification/internal/completion"
	"github.com/VAR-META-Tech/intent-verification/internal/config"
	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/gitdiff"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
	"github.com/VAR-META-Tech/intent-verification/internal/reviewer"
)

const goodReply = `{"is_good": true, "description": "clean change", "suggestions": null, "confidence": 0.9}`

type mockSource struct {
	files []gitdiff.FileChange
	err   error
	calls atomic.Int32
}

func (m *mockSource) ChangedFiles(ctx context.Context, repoURL, from, to string) ([]gitdiff.FileChange, error) {
	m.calls.Add(1)
	return m.files, m.err
}

// mockCompleters records the options and credentials each call was built with.
type mockCompleters struct {
	mu      sync.Mutex
	backend completion.Func
	keys    []string
	opts    []completion.Options
}

func (m *mockCompleters) factory(ctx context.Context, provider, apiKey string, opts completion.Options) (completion.Completer, error) {
	m.mu.Lock()
	m.keys = append(m.keys, apiKey)
	m.opts = append(m.opts, opts)
	m.mu.Unlock()

	opts.Retry.Delay = time.Millisecond
	opts.Retry.MaxDelay = time.Millisecond
	opts.Retry.MaxJitter = 0
	return completion.Wrap(m.backend, opts), nil
}

func newTestAnalyzer(t *testing.T, source gitdiff.Source, backend completion.Func) (*Analyzer, *mockCompleters) {
	t.Helper()
	m := &mockCompleters{backend: backend}
	a, err := NewWithOptions(
		WithSource(source),
		WithCompleterFactory(m.factory),
		WithLogger(logging.Discard()),
		WithConcurrency(3),
	)
	require.NoError(t, err)
	return a, m
}

func file(path, changeType string) gitdiff.FileChange {
	return gitdiff.FileChange{Path: path, ChangeType: changeType, Content: "package " + strings.TrimSuffix(path, ".go")}
}

func TestNewResult(t *testing.T) {
	good := reviewer.Verdict{IsGood: true, Confidence: 0.9}
	bad := reviewer.Verdict{IsGood: false, Confidence: 0.8}
	failed := reviewer.Verdict{IsGood: false, Error: true, Rationale: constants.MarkerReviewError + " boom"}
	skipped := reviewer.Verdict{IsGood: true, Skipped: true, Confidence: 1}

	tests := []struct {
		name            string
		verdicts        []reviewer.Verdict
		wantTotal       int
		wantAnalyzed    int
		wantGood        int
		wantIssues      int
		wantOverallGood bool
	}{
		{name: "empty diff", verdicts: nil},
		{name: "all good", verdicts: []reviewer.Verdict{good, good, good}, wantTotal: 3, wantAnalyzed: 3, wantGood: 3, wantOverallGood: true},
		{name: "one issue", verdicts: []reviewer.Verdict{good, bad}, wantTotal: 2, wantAnalyzed: 2, wantGood: 1, wantIssues: 1},
		{name: "error counts as issue", verdicts: []reviewer.Verdict{good, failed}, wantTotal: 2, wantAnalyzed: 2, wantGood: 1, wantIssues: 1},
		{name: "only skipped files", verdicts: []reviewer.Verdict{skipped, skipped}, wantTotal: 2},
		{name: "skipped and good", verdicts: []reviewer.Verdict{skipped, good}, wantTotal: 2, wantAnalyzed: 1, wantGood: 1, wantOverallGood: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResult(tt.verdicts)
			assert.Equal(t, tt.wantTotal, r.TotalFiles)
			assert.Equal(t, tt.wantAnalyzed, r.AnalyzedFiles)
			assert.Equal(t, tt.wantGood, r.GoodFiles)
			assert.Equal(t, tt.wantIssues, r.FilesWithIssues)
			assert.Equal(t, tt.wantOverallGood, r.OverallGood)

			assert.Equal(t, r.AnalyzedFiles, r.GoodFiles+r.FilesWithIssues)
			assert.LessOrEqual(t, r.AnalyzedFiles, r.TotalFiles)
			assert.Equal(t, r.FilesWithIssues == 0 && r.AnalyzedFiles > 0, r.OverallGood)
		})
	}
}

func TestAnalyzeRepositoryChanges_AllGood(t *testing.T) {
	source := &mockSource{files: []gitdiff.FileChange{
		file("a.go", constants.ChangeAdded),
		file("b.go", constants.ChangeModified),
		file("c.go", constants.ChangeModified),
	}}
	a, m := newTestAnalyzer(t, source, func(ctx context.Context, prompt string) (string, error) {
		return goodReply, nil
	})

	result, err := a.AnalyzeRepositoryChanges(context.Background(), "sk-test", "https://example.com/repo.git", "abc123", "def456")
	require.NoError(t, err)

	assert.True(t, result.OverallGood)
	assert.Equal(t, 3, result.TotalFiles)
	assert.Equal(t, 3, result.AnalyzedFiles)
	assert.Equal(t, 3, result.GoodFiles)
	assert.Equal(t, 0, result.FilesWithIssues)

	details, err := result.FileDetailsJSON()
	require.NoError(t, err)
	verdicts, err := DecodeFileDetails(details)
	require.NoError(t, err)
	require.Len(t, verdicts, 3)
	for i, v := range verdicts {
		assert.Equal(t, source.files[i].Path, v.FilePath)
		assert.True(t, v.IsGood)
	}

	require.Len(t, m.keys, 1)
	assert.Equal(t, "sk-test", m.keys[0])
	assert.Equal(t, reviewer.SystemPrompt, m.opts[0].System)
	assert.Equal(t, constants.DefaultOpenAIModel, m.opts[0].Model)
	assert.Equal(t, constants.DefaultOpenAIBaseURL, m.opts[0].BaseURL)
	assert.Equal(t, constants.MaxRetryAttempts, m.opts[0].Retry.MaxAttempts)
}

func TestAnalyzeRepositoryChanges_RetryExhaustion(t *testing.T) {
	var flakyCalls atomic.Int32
	source := &mockSource{files: []gitdiff.FileChange{
		file("ok.go", constants.ChangeModified),
		file("flaky.go", constants.ChangeModified),
	}}
	a, _ := newTestAnalyzer(t, source, func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "flaky.go") {
			flakyCalls.Add(1)
			return "", &errors.APIError{Service: "openai", Method: "Complete", StatusCode: http.StatusServiceUnavailable, Err: fmt.Errorf("service unavailable")}
		}
		return goodReply, nil
	})

	result, err := a.AnalyzeRepositoryChanges(context.Background(), "sk-test", "https://example.com/repo.git", "abc123", "def456")
	require.NoError(t, err)

	assert.False(t, result.OverallGood)
	assert.Equal(t, 2, result.TotalFiles)
	assert.Equal(t, 2, result.AnalyzedFiles)
	assert.Equal(t, 1, result.GoodFiles)
	assert.Equal(t, 1, result.FilesWithIssues)
	assert.Equal(t, int32(constants.MaxRetryAttempts), flakyCalls.Load())

	flaky := result.Files[1]
	assert.Equal(t, "flaky.go", flaky.FilePath)
	assert.True(t, flaky.Error)
	assert.True(t, strings.HasPrefix(flaky.Rationale, constants.MarkerReviewError))
}

func TestAnalyzeRepositoryChanges_ServiceUnreachable(t *testing.T) {
	unavailable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unavailable.Close()

	refused := httptest.NewServer(http.NotFoundHandler())
	refusedURL := refused.URL
	refused.Close()

	tests := []struct {
		name    string
		baseURL string
	}{
		{name: "every request answered with 503", baseURL: unavailable.URL},
		{name: "connection refused", baseURL: refusedURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &mockSource{files: []gitdiff.FileChange{
				file("a.go", constants.ChangeAdded),
				file("b.go", constants.ChangeModified),
				file("c.go", constants.ChangeModified),
			}}
			a, err := NewWithOptions(
				WithSource(source),
				WithLogger(logging.Discard()),
				WithCompleterFactory(func(ctx context.Context, provider, apiKey string, opts completion.Options) (completion.Completer, error) {
					opts.BaseURL = tt.baseURL
					opts.Retry.Delay = time.Millisecond
					opts.Retry.MaxDelay = time.Millisecond
					opts.Retry.MaxJitter = 0
					return completion.Wrap(completion.NewOpenAI(apiKey, opts), opts), nil
				}),
			)
			require.NoError(t, err)

			result, err := a.AnalyzeRepositoryChanges(context.Background(), "sk-test", "https://example.com/repo.git", "abc123", "def456")
			require.NoError(t, err)
			require.NotNil(t, result)

			assert.False(t, result.OverallGood)
			assert.Equal(t, 3, result.TotalFiles)
			assert.Equal(t, 3, result.AnalyzedFiles)
			assert.Equal(t, 3, result.FilesWithIssues)
			assert.Equal(t, 0, result.GoodFiles)
			for _, v := range result.Files {
				assert.True(t, v.Error, v.FilePath)
				assert.True(t, strings.HasPrefix(v.Rationale, constants.MarkerReviewError))
			}
		})
	}
}

func TestAnalyzeRepositoryChanges_InvalidCredential(t *testing.T) {
	source := &mockSource{files: []gitdiff.FileChange{
		file("a.go", constants.ChangeAdded),
		file("b.go", constants.ChangeAdded),
	}}
	a, _ := newTestAnalyzer(t, source, func(ctx context.Context, prompt string) (string, error) {
		return "", &errors.AuthError{Service: "openai", Err: fmt.Errorf("Incorrect API key provided")}
	})

	result, err := a.AnalyzeRepositoryChanges(context.Background(), "sk-bad", "https://example.com/repo.git", "abc123", "def456")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.IsAuth(err))
	assert.True(t, errors.IsInvocationError(err))
}

func TestAnalyzeRepositoryChanges_EmptyArguments(t *testing.T) {
	tests := []struct {
		name      string
		apiKey    string
		repoURL   string
		commit1   string
		commit2   string
		wantField string
	}{
		{name: "api key", repoURL: "r", commit1: "a", commit2: "b", wantField: "api_key"},
		{name: "repo url", apiKey: "k", repoURL: "  ", commit1: "a", commit2: "b", wantField: "repo_url"},
		{name: "first commit", apiKey: "k", repoURL: "r", commit2: "b", wantField: "commit1"},
		{name: "second commit", apiKey: "k", repoURL: "r", commit1: "a", wantField: "commit2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &mockSource{}
			a, _ := newTestAnalyzer(t, source, func(ctx context.Context, prompt string) (string, error) {
				return goodReply, nil
			})

			result, err := a.AnalyzeRepositoryChanges(context.Background(), tt.apiKey, tt.repoURL, tt.commit1, tt.commit2)
			assert.Nil(t, result)
			assert.True(t, stderrors.Is(err, errors.ErrEmptyArgument))
			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
			assert.Equal(t, int32(0), source.calls.Load())
		})
	}
}

func TestAnalyzeRepositoryChanges_RetrievalError(t *testing.T) {
	source := &mockSource{err: &errors.RetrievalError{
		RepoURL: "https://example.com/missing.git",
		Err:     errors.ErrRepositoryUnreachable,
	}}
	a, m := newTestAnalyzer(t, source, func(ctx context.Context, prompt string) (string, error) {
		return goodReply, nil
	})

	result, err := a.AnalyzeRepositoryChanges(context.Background(), "sk-test", "https://example.com/missing.git", "a", "b")
	assert.Nil(t, result)
	assert.True(t, stderrors.Is(err, errors.ErrRepositoryUnreachable))
	assert.True(t, errors.IsInvocationError(err))
	assert.Empty(t, m.keys)
}

func TestAnalyzeRepositoryChanges_EmptyDiff(t *testing.T) {
	a, m := newTestAnalyzer(t, &mockSource{}, func(ctx context.Context, prompt string) (string, error) {
		return goodReply, nil
	})

	result, err := a.AnalyzeRepositoryChanges(context.Background(), "sk-test", "repo", "a", "a")
	require.NoError(t, err)
	assert.False(t, result.OverallGood)
	assert.Equal(t, 0, result.TotalFiles)
	assert.Empty(t, m.keys)

	details, err := result.FileDetailsJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", details)
}

func TestAnalyzeRepositoryChanges_SkippedFiles(t *testing.T) {
	source := &mockSource{files: []gitdiff.FileChange{
		{Path: "old.go", ChangeType: constants.ChangeDeleted},
		file("new.go", constants.ChangeAdded),
		{Path: "img.png", ChangeType: constants.ChangeModified, Binary: true},
	}}
	a, _ := newTestAnalyzer(t, source, func(ctx context.Context, prompt string) (string, error) {
		return goodReply, nil
	})

	result, err := a.AnalyzeRepositoryChanges(context.Background(), "sk-test", "repo", "a", "b")
	require.NoError(t, err)
	assert.True(t, result.OverallGood)
	assert.Equal(t, 3, result.TotalFiles)
	assert.Equal(t, 1, result.AnalyzedFiles)
	assert.Equal(t, []string{"old.go", "new.go", "img.png"},
		[]string{result.Files[0].FilePath, result.Files[1].FilePath, result.Files[2].FilePath})
}

func TestAnalyzeRepositoryChanges_CallTimeout(t *testing.T) {
	source := &mockSource{files: []gitdiff.FileChange{file("slow.go", constants.ChangeAdded)}}
	m := &mockCompleters{backend: func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	a, err := NewWithOptions(
		WithSource(source),
		WithCompleterFactory(m.factory),
		WithLogger(logging.Discard()),
		WithCallTimeout(20*time.Millisecond),
	)
	require.Error(t, err, "call timeout shorter than the request timeout is rejected")

	cfg := config.Default()
	cfg.Review.RequestTimeout = 10 * time.Millisecond
	cfg.Review.CallTimeout = 20 * time.Millisecond
	a, err = New(cfg, WithSource(source), WithCompleterFactory(m.factory), WithLogger(logging.Discard()))
	require.NoError(t, err)

	result, err := a.AnalyzeRepositoryChanges(context.Background(), "sk-test", "repo", "a", "b")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAskQuestion(t *testing.T) {
	a, m := newTestAnalyzer(t, &mockSource{}, func(ctx context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	})

	reply, err := a.AskQuestion(context.Background(), "What is Rust?", "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "echo: What is Rust?", reply)
	require.Len(t, m.opts, 1)
	assert.Empty(t, m.opts[0].System)
}

func TestAskQuestion_Failures(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		apiKey  string
		backend completion.Func
		check   func(t *testing.T, err error)
	}{
		{
			name:   "empty prompt",
			prompt: "",
			apiKey: "sk-test",
			check: func(t *testing.T, err error) {
				assert.True(t, stderrors.Is(err, errors.ErrEmptyArgument))
			},
		},
		{
			name:   "empty key",
			prompt: "hi",
			check: func(t *testing.T, err error) {
				assert.True(t, stderrors.Is(err, errors.ErrEmptyArgument))
			},
		},
		{
			name:   "rejected credential",
			prompt: "hi",
			apiKey: "sk-bad",
			backend: func(ctx context.Context, prompt string) (string, error) {
				return "", &errors.AuthError{Service: "openai", Err: fmt.Errorf("invalid key")}
			},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsAuth(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := tt.backend
			if backend == nil {
				backend = func(ctx context.Context, prompt string) (string, error) {
					t.Fatal("completion service must not be called")
					return "", nil
				}
			}
			a, _ := newTestAnalyzer(t, &mockSource{}, backend)

			reply, err := a.AskQuestion(context.Background(), tt.prompt, tt.apiKey)
			require.Error(t, err)
			assert.Empty(t, reply)
			tt.check(t, err)
		})
	}
}

func TestFileDetailsJSONFieldNames(t *testing.T) {
	details, err := EncodeFileDetails([]reviewer.Verdict{{
		FilePath:    "src/lib.rs",
		ChangeType:  constants.ChangeModified,
		IsGood:      false,
		Rationale:   "unchecked unwrap",
		Suggestions: "handle the error",
		Confidence:  0.75,
	}})
	require.NoError(t, err)

	for _, key := range []string{`"file_path":"src/lib.rs"`, `"change_type":"modified"`, `"is_good":false`,
		`"rationale":"unchecked unwrap"`, `"suggestions":"handle the error"`, `"confidence":0.75`} {
		assert.Contains(t, details, key)
	}
	for _, key := range []string{`"skipped"`, `"error"`, `"warnings"`} {
		assert.NotContains(t, details, key)
	}

	_, err = DecodeFileDetails("not json")
	assert.Error(t, err)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := NewWithOptions(WithProvider("llama"), WithSource(&mockSource{}))
	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "provider", ve.Field)

	_, err = NewWithOptions(WithConcurrency(0), WithSource(&mockSource{}))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "review.concurrency", ve.Field)
}

func TestDefaultSource(t *testing.T) {
	cfg := config.Default()
	s, err := defaultSource(cfg, logging.Discard())
	require.NoError(t, err)
	router, ok := s.(*gitdiff.Router)
	require.True(t, ok)
	assert.Nil(t, router.GitHub)
	assert.NotNil(t, router.Clone)

	cfg.GitHub.Token = "ghp_test"
	s, err = defaultSource(cfg, logging.Discard())
	require.NoError(t, err)
	assert.NotNil(t, s.(*gitdiff.Router).GitHub)
}
