package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(target string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		target string
		want   Params
	}{
		{"/", Params{Limit: DefaultLimit}},
		{"/?limit=10&offset=30", Params{Limit: 10, Offset: 30}},
		{"/?limit=1000", Params{Limit: MaxLimit}},
		{"/?limit=-3&offset=-5", Params{Limit: DefaultLimit}},
		{"/?limit=abc", Params{Limit: DefaultLimit}},
	}
	for _, tt := range tests {
		if got := paramsFor(tt.target); got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.target, got, tt.want)
		}
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 5, 2, 0)
	if !resp.HasMore || resp.NextOffset == nil || *resp.NextOffset != 2 {
		t.Errorf("unexpected first page %+v", resp)
	}

	last := NewResponse([]string{"e"}, 5, 2, 4)
	if last.HasMore || last.NextOffset != nil {
		t.Errorf("unexpected last page %+v", last)
	}
}

func TestParams_Navigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 5}
	if !p.HasPrevious() || p.PreviousOffset() != 0 {
		t.Errorf("previous: %v %d", p.HasPrevious(), p.PreviousOffset())
	}
	if p.NextOffset() != 15 || !p.HasNext(16) || p.HasNext(15) {
		t.Errorf("next: %d", p.NextOffset())
	}
	if (Params{Limit: 10}).HasPrevious() {
		t.Error("first page has no previous")
	}
}
