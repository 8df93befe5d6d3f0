// Package main builds the intent-verification shared library.
//
// Intent-verification reviews the files changed between two commits of a git
// repository with an AI completion service and reports a per-file verdict. It
// is loaded by other languages through the C interface declared in
// include/intent_verification.h.
//
// Features:
//   - Clones any git URL or local path; uses the GitHub compare API when a token is configured
//   - OpenAI by default, with Gemini and Anthropic as alternative providers
//   - Concurrent per-file review with ordered, aggregated results
//   - Retries with backoff for transient completion failures
//   - Prompt-injection screening of reviewed content
//
// Build:
//
//	go build -buildmode=c-shared -o libintent_verification.so .
//
// Every call passes its own API key. Optional settings are read from
// ~/.config/intent-verification/config.yaml and INTENT_VERIFICATION_*
// environment variables. A command-line front-end lives in cmd/intent-verification.
package main
