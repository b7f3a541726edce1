package vplayererrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ErrorStringUsesKindAndMessage(t *testing.T) {
	err := New(ProbeUnavailable, "ffprobe missing")
	assert.Equal(t, "ProbeUnavailable: ffprobe missing", err.Error())
}

func TestNew_ErrorStringFallsBackToKindWhenMessageEmpty(t *testing.T) {
	err := New(Cancelled, "")
	assert.Equal(t, "Cancelled", err.Error())
}

func TestWrap_ErrorStringPrefersMessageOverUnderlying(t *testing.T) {
	underlying := errors.New("boom")
	err := Wrap(ProcessingFailed, "job failed", underlying)
	assert.Equal(t, "ProcessingFailed: job failed", err.Error())
}

func TestWrap_UnwrapReturnsUnderlyingError(t *testing.T) {
	underlying := errors.New("boom")
	err := Wrap(ListenerUnavailable, "bind failed", underlying)

	assert.Equal(t, underlying, errors.Unwrap(err))
	assert.True(t, errors.Is(err, underlying))
}

func TestError_IsMatchesSameKindRegardlessOfMessage(t *testing.T) {
	a := New(OutputMissing, "one message")
	b := New(OutputMissing, "a completely different message")

	assert.True(t, errors.Is(a, b))
}

func TestError_IsRejectsDifferentKindsAndTypes(t *testing.T) {
	a := New(OutputMissing, "x")
	b := New(Cancelled, "x")

	assert.False(t, errors.Is(a, b))
	assert.False(t, a.Is(errors.New("plain error")))
}

func TestKindOf_MatchesDirectTaxonomyError(t *testing.T) {
	kind, ok := KindOf(New(RendererFailure, "renderer choked"))
	require.True(t, ok)
	assert.Equal(t, RendererFailure, kind)
}

func TestKindOf_UnwrapsThroughAdditionalWrapping(t *testing.T) {
	inner := Wrap(ListenerUnavailable, "bind failed", errors.New("address in use"))
	outer := fmt.Errorf("streamserver startup: %w", inner)

	kind, ok := KindOf(outer)
	require.True(t, ok)
	assert.Equal(t, ListenerUnavailable, kind)
}

func TestKindOf_FalseForNonTaxonomyError(t *testing.T) {
	_, ok := KindOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestProcessingFailure_CarriesExitCodeAndStderrTail(t *testing.T) {
	err := ProcessingFailure(7, "disk full")
	assert.Equal(t, ProcessingFailed, err.Kind)
	assert.Equal(t, 7, err.ExitCode)
	assert.Equal(t, "disk full", err.StderrTail)
	assert.Equal(t, "ProcessingFailed: processing failed with exit code 7", err.Error())
}

func TestProcessingFailure_DefaultsStderrTailWhenEmpty(t *testing.T) {
	err := ProcessingFailure(1, "")
	assert.Equal(t, "unknown error", err.StderrTail)
}

func TestKind_StringCoversEveryTaxonomyKind(t *testing.T) {
	cases := map[Kind]string{
		ProbeUnavailable:    "ProbeUnavailable",
		ProcessingFailed:    "ProcessingFailed",
		OutputMissing:       "OutputMissing",
		Cancelled:           "Cancelled",
		ListenerUnavailable: "ListenerUnavailable",
		InvalidRequest:      "InvalidRequest",
		RendererFailure:     "RendererFailure",
		PermissionDenied:    "PermissionDenied",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestKind_StringUnknownDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Kind(99).String())
}
