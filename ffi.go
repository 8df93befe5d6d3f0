package main

/*
#include <stdbool.h>
#include <stdlib.h>

typedef struct
{
    bool is_good;
    int total_files;
    int analyzed_files;
    int good_files;
    int files_with_issues;
    char *files_json;
} CRepositoryAnalysisResult;
*/
import "C"

import (
	"context"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/VAR-META-Tech/intent-verification/internal/analyzer"
	"github.com/VAR-META-Tech/intent-verification/internal/config"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/handle"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
)

var (
	initOnce sync.Once
	lib      *analyzer.Analyzer
	libErr   error
	registry *handle.Registry
	logger   *slog.Logger
)

// state loads configuration and builds the shared analyzer on first use.
// The analyzer carries no credentials; every call passes its own key.
func state() (*analyzer.Analyzer, error) {
	initOnce.Do(func() {
		logger = logging.Default()

		cfg, err := config.Load("")
		if err != nil {
			logger.Error("loading configuration, using defaults", "error", err)
			cfg = config.Default()
		} else if l, err := logging.Setup(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File, Stderr: true}); err == nil {
			logger = l
		} else {
			logger.Error("configuring log output", "error", err)
		}

		registry = handle.NewRegistry(logger)
		lib, libErr = analyzer.New(cfg, analyzer.WithLogger(logger))
		if libErr != nil {
			logger.Error("initializing analyzer", "error", libErr)
		}
	})
	return lib, libErr
}

// recoverBoundary stops a panic from unwinding into the foreign caller.
func recoverBoundary(name string) {
	if r := recover(); r != nil {
		logging.Default().Error("panic at C boundary", "function", name, "panic", r)
	}
}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

//export analyze_repository_changes_ffi
func analyze_repository_changes_ffi(apiKey, repoURL, commit1, commit2 *C.char) *C.CRepositoryAnalysisResult {
	defer recoverBoundary("analyze_repository_changes_ffi")

	a, err := state()
	if err != nil {
		return nil
	}

	result, err := a.AnalyzeRepositoryChanges(context.Background(),
		goString(apiKey), goString(repoURL), goString(commit1), goString(commit2))
	if err != nil {
		if errors.IsInvocationError(err) {
			logger.Warn("analysis rejected", "error", err)
		} else {
			logger.Error("analysis failed", "error", err)
		}
		return nil
	}

	details, err := result.FileDetailsJSON()
	if err != nil {
		logger.Error("encoding file details", "error", err)
		return nil
	}
	if err := checkCString(details); err != nil {
		logger.Error("file details cannot be returned as a C string", "error", err)
		return nil
	}

	ptr := (*C.CRepositoryAnalysisResult)(C.malloc(C.size_t(unsafe.Sizeof(C.CRepositoryAnalysisResult{}))))
	ptr.is_good = C.bool(result.OverallGood)
	ptr.total_files = C.int(result.TotalFiles)
	ptr.analyzed_files = C.int(result.AnalyzedFiles)
	ptr.good_files = C.int(result.GoodFiles)
	ptr.files_with_issues = C.int(result.FilesWithIssues)
	ptr.files_json = C.CString(details)

	registry.Register(uintptr(unsafe.Pointer(ptr)), handle.AnalysisResult)
	return ptr
}

//export free_analysis_result
func free_analysis_result(ptr *C.CRepositoryAnalysisResult) {
	defer recoverBoundary("free_analysis_result")

	if ptr == nil {
		return
	}
	state()
	if err := registry.Release(uintptr(unsafe.Pointer(ptr)), handle.AnalysisResult); err != nil {
		return
	}
	C.free(unsafe.Pointer(ptr.files_json))
	C.free(unsafe.Pointer(ptr))
}

//export ask_openai
func ask_openai(prompt, apiKey *C.char) *C.char {
	defer recoverBoundary("ask_openai")

	a, err := state()
	if err != nil {
		return nil
	}

	reply, err := a.AskQuestion(context.Background(), goString(prompt), goString(apiKey))
	if err != nil {
		logger.Error("question failed", "error", err)
		return nil
	}
	if err := checkCString(reply); err != nil {
		logger.Error("reply cannot be returned as a C string", "error", err)
		return nil
	}

	s := C.CString(reply)
	registry.Register(uintptr(unsafe.Pointer(s)), handle.String)
	return s
}

//export free_str
func free_str(ptr *C.char) {
	defer recoverBoundary("free_str")

	if ptr == nil {
		return
	}
	state()
	if err := registry.Release(uintptr(unsafe.Pointer(ptr)), handle.String); err != nil {
		return
	}
	C.free(unsafe.Pointer(ptr))
}
