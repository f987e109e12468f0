package apperr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestNetworkErrorMessages(t *testing.T) {
	withStatus := &NetworkError{Op: "analyze_depth", Status: 502}
	if got := withStatus.Error(); got != "analyze_depth: HTTP error! status: 502" {
		t.Errorf("unexpected message: %q", got)
	}

	wrapped := &NetworkError{Op: "get_dem", Err: io.ErrUnexpectedEOF}
	if !errors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Error("NetworkError must unwrap to the transport error")
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	err := fmt.Errorf("depth stage: %w", &ApplicationError{Op: "analyze_depth", Message: "no DEM"})

	var appErr *ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatal("expected ApplicationError through wrapping")
	}
	if appErr.Error() != "analyze_depth: no DEM" {
		t.Errorf("unexpected message: %q", appErr.Error())
	}

	empty := &ApplicationError{Op: "analyze_depth"}
	if empty.Error() != "analyze_depth: Analysis failed" {
		t.Errorf("unexpected default message: %q", empty.Error())
	}
}

func TestValidation(t *testing.T) {
	err := error(Validation("sitename", "Please enter a site name first."))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatal("expected ValidationError")
	}
	if vErr.Field != "sitename" {
		t.Errorf("field = %q", vErr.Field)
	}
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&NetworkError{Op: "get_dem", Status: 404}, "HTTP error! status: 404"},
		{&NetworkError{Op: "get_dem", Err: io.EOF}, "EOF"},
		{fmt.Errorf("stage: %w", &ApplicationError{Op: "analyze_depth", Message: "No DEM coverage"}), "No DEM coverage"},
		{&ApplicationError{Op: "analyze_depth"}, "Analysis failed"},
		{Validation("sitename", "Please enter a site name"), "Please enter a site name"},
	}
	for _, tc := range cases {
		if got := UserMessage(tc.err); got != tc.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
