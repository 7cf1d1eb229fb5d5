package tracker

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type fakeDoer struct {
	resp *http.Response
	err  error
	reqs []*http.Request
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func jsonResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestLookupOKParsesAssetID(t *testing.T) {
	doer := &fakeDoer{resp: jsonResponse(200, `{"items":[{"asset_id":"A42"}]}`)}
	c := New("http://trak.example", "key", WithHTTPClient(doer))

	res, err := c.Lookup(context.Background(), "/d/clip.mxf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusOK || res.AssetID != "A42" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLookupUnauthorizedDoesNotError(t *testing.T) {
	doer := &fakeDoer{resp: jsonResponse(401, `{}`)}
	c := New("http://trak.example", "key", WithHTTPClient(doer))

	res, err := c.Lookup(context.Background(), "/d/clip.mxf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusUnauthorized || res.HTTPCode != 401 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLookupNetworkErrorBecomesStatusError(t *testing.T) {
	doer := &fakeDoer{err: io.ErrClosedPipe}
	c := New("http://trak.example", "key", WithHTTPClient(doer))

	res, err := c.Lookup(context.Background(), "/d/clip.mxf")
	if err != nil {
		t.Fatalf("tracker failures must never surface as Go errors: %v", err)
	}
	if res.Status != StatusError {
		t.Fatalf("expected status error, got %+v", res)
	}
}

func TestPostResultOnlyCalledExplicitly(t *testing.T) {
	doer := &fakeDoer{resp: jsonResponse(200, `{}`)}
	c := New("http://trak.example", "key", WithHTTPClient(doer))

	res, err := c.PostResult(context.Background(), map[string]string{"qc_result": "pass"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusOK {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(doer.reqs) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(doer.reqs))
	}
}

func TestEnabledReflectsBaseURL(t *testing.T) {
	if New("", "").Enabled() {
		t.Fatal("expected disabled tracker with empty base URL")
	}
	if !New("http://trak.example", "").Enabled() {
		t.Fatal("expected enabled tracker with base URL set")
	}
}
