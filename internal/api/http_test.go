package api

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bher20/gmeter/internal/auth"
	"github.com/bher20/gmeter/internal/corrections"
	"github.com/bher20/gmeter/internal/eop"
	"github.com/bher20/gmeter/internal/metrics"
	"github.com/bher20/gmeter/internal/storage"
	"github.com/bher20/gmeter/internal/units"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const sampleCSV = `mjd,x,y,provenance
60000,0.1,0.3,final
60001,0.2,0.4,preliminary
60002,0.3,0.5,predicted
`

type testEnv struct {
	srv   *httptest.Server
	store storage.Storage
	auth  *auth.Service
}

func newProvider(t *testing.T, content string) *eop.Provider {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eop.csv")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	f, _ := eop.GetFormat(eop.FormatCSV)
	p, err := eop.NewProvider(eop.NewFileSource("test", path, f), eop.DefaultConfig(),
		eop.WithWarnFunc(func(eop.Warning) {}))
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return p
}

func newEnv(t *testing.T, content string, withAuth bool) *testEnv {
	t.Helper()
	st := storage.NewMemory()
	env := &testEnv{store: st}
	opts := Options{Provider: newProvider(t, content), Storage: st}
	if withAuth {
		svc, err := auth.NewService(context.Background(), st)
		if err != nil {
			t.Fatalf("auth: %v", err)
		}
		env.auth = svc
		opts.Auth = svc
	}
	env.srv = httptest.NewServer(NewMux(opts))
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func (e *testEnv) token(t *testing.T, role string) string {
	t.Helper()
	_, raw, err := e.auth.CreateToken(context.Background(), role, role, nil)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return raw
}

func TestHealthEndpoints(t *testing.T) {
	env := newEnv(t, sampleCSV, false)
	for path, want := range map[string]string{"/healthz": "ok", "/livez": "live", "/readyz": "ready"} {
		code, body := env.do(t, http.MethodGet, path, "", "")
		if code != http.StatusOK || string(body) != want {
			t.Errorf("%s: %d %q", path, code, body)
		}
	}
	if code, _ := env.do(t, http.MethodGet, "/metrics", "", ""); code != http.StatusOK {
		t.Errorf("/metrics: %d", code)
	}
}

func TestPoleEndpoint(t *testing.T) {
	env := newEnv(t, sampleCSV, false)

	code, body := env.do(t, http.MethodGet, "/api/v1/eop/pole?mjd=60000.5", "", "")
	if code != http.StatusOK {
		t.Fatalf("status %d: %s", code, body)
	}
	var resp PoleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pole.Provenance != eop.Preliminary || resp.Bulletin != "IERS_A" {
		t.Fatalf("unexpected provenance %s/%s", resp.Pole.Provenance, resp.Bulletin)
	}
	if math.Abs(resp.Pole.X.Value-0.15) > 1e-12 || resp.Pole.X.Unit != units.Arcsecond {
		t.Fatalf("unexpected x %v", resp.Pole.X)
	}

	code, body = env.do(t, http.MethodGet, "/api/v1/eop/pole?time="+url.QueryEscape("2023-02-25T00:00:00Z"), "", "")
	if code != http.StatusOK || !strings.Contains(string(body), `"provenance":"final"`) {
		t.Fatalf("time query: %d %s", code, body)
	}

	code, body = env.do(t, http.MethodGet, "/api/v1/eop/pole?mjd=70000", "", "")
	if code != http.StatusOK || !strings.Contains(string(body), "OUT_OF_RANGE") {
		t.Fatalf("out of range should succeed as unavailable: %d %s", code, body)
	}
}

func TestPoleEndpointErrors(t *testing.T) {
	env := newEnv(t, sampleCSV, false)
	before := testutil.ToFloat64(metrics.RequestErrorsTotal.WithLabelValues("/api/v1/eop/pole", "400"))

	bad := []string{"", "?time=yesterday", "?mjd=abc", "?mjd=NaN", "?mjd=Inf", "?mjd=1e9", "?mjd=-1e9"}
	for _, q := range bad {
		if code, body := env.do(t, http.MethodGet, "/api/v1/eop/pole"+q, "", ""); code != http.StatusBadRequest || len(body) == 0 {
			t.Errorf("%q: %d %s", q, code, body)
		}
	}
	after := testutil.ToFloat64(metrics.RequestErrorsTotal.WithLabelValues("/api/v1/eop/pole", "400"))
	if after-before != float64(len(bad)) {
		t.Errorf("expected %d recorded errors, got %v", len(bad), after-before)
	}

	missing := newEnv(t, "", false)
	if code, body := missing.do(t, http.MethodGet, "/api/v1/eop/pole?mjd=60000", "", ""); code != http.StatusServiceUnavailable {
		t.Errorf("missing source: %d %s", code, body)
	}

	garbage := newEnv(t, "60000,not,a,number\n", false)
	if code, body := garbage.do(t, http.MethodGet, "/api/v1/eop/pole?mjd=60000", "", ""); code != http.StatusBadGateway {
		t.Errorf("malformed source: %d %s", code, body)
	}
}

func TestPoleBatch(t *testing.T) {
	env := newEnv(t, sampleCSV, false)

	code, body := env.do(t, http.MethodPost, "/api/v1/eop/pole/batch", "",
		`{"times":["2023-02-25T00:00:00Z"],"mjds":[60002, 70000]}`)
	if code != http.StatusOK {
		t.Fatalf("status %d: %s", code, body)
	}
	var resp BatchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Poles) != 3 {
		t.Fatalf("expected 3 poles, got %d", len(resp.Poles))
	}
	if resp.Provenance["final"] != 1 || resp.Provenance["predicted"] != 1 || resp.Provenance["unavailable"] != 1 {
		t.Fatalf("unexpected provenance counts %v", resp.Provenance)
	}

	for _, bad := range []string{`{}`, `not json`, `{"mjds":[60000, 1e9]}`} {
		if code, _ := env.do(t, http.MethodPost, "/api/v1/eop/pole/batch", "", bad); code != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", bad, code)
		}
	}
}

func TestStatusAndRefresh(t *testing.T) {
	env := newEnv(t, sampleCSV, true)

	code, body := env.do(t, http.MethodGet, "/api/v1/eop/status", "", "")
	if code != http.StatusOK || !strings.Contains(string(body), `"loaded":false`) {
		t.Fatalf("status before refresh: %d %s", code, body)
	}

	if code, _ := env.do(t, http.MethodPost, "/api/v1/eop/refresh", "", ""); code != http.StatusUnauthorized {
		t.Fatalf("anonymous refresh: %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/api/v1/eop/refresh", env.token(t, auth.RoleViewer), ""); code != http.StatusForbidden {
		t.Fatalf("viewer refresh: %d", code)
	}
	code, body = env.do(t, http.MethodPost, "/api/v1/eop/refresh", env.token(t, auth.RoleOperator), "")
	if code != http.StatusOK {
		t.Fatalf("operator refresh: %d %s", code, body)
	}
	var resp StatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Table.Loaded || resp.Table.Samples != 3 || resp.Table.LastFinal != 60000 {
		t.Fatalf("unexpected status %+v", resp.Table)
	}

	if code, _ := env.do(t, http.MethodGet, "/api/v1/eop/refresh", "", ""); code != http.StatusMethodNotAllowed {
		t.Fatalf("GET refresh should not be allowed, got %d", code)
	}
}

func TestRefreshScheduleSetting(t *testing.T) {
	env := newEnv(t, sampleCSV, true)
	op := env.token(t, auth.RoleOperator)

	code, body := env.do(t, http.MethodGet, "/api/v1/settings/refresh-schedule", "", "")
	if code != http.StatusOK || !strings.Contains(string(body), `"source":"default"`) {
		t.Fatalf("default schedule: %d %s", code, body)
	}

	if code, _ := env.do(t, http.MethodPut, "/api/v1/settings/refresh-schedule", op, `{"schedule":"whenever"}`); code != http.StatusBadRequest {
		t.Fatalf("invalid schedule: %d", code)
	}
	if code, _ := env.do(t, http.MethodPut, "/api/v1/settings/refresh-schedule", env.token(t, auth.RoleViewer), `{"schedule":"600"}`); code != http.StatusForbidden {
		t.Fatalf("viewer write: %d", code)
	}
	if code, body := env.do(t, http.MethodPut, "/api/v1/settings/refresh-schedule", op, `{"schedule":"0 */3 * * *"}`); code != http.StatusOK {
		t.Fatalf("operator write: %d %s", code, body)
	}

	code, body = env.do(t, http.MethodGet, "/api/v1/settings/refresh-schedule", "", "")
	var got ScheduleSetting
	json.Unmarshal(body, &got)
	if code != http.StatusOK || got.Schedule != "0 */3 * * *" || got.Source != "setting" {
		t.Fatalf("stored schedule: %d %+v", code, got)
	}
}

func TestPolarCorrectionEndpoint(t *testing.T) {
	env := newEnv(t, sampleCSV, false)

	code, body := env.do(t, http.MethodGet, "/api/v1/corrections/polar?lat=45&lon=0&xp=0.1&yp=0.2", "", "")
	if code != http.StatusOK {
		t.Fatalf("explicit pole: %d %s", code, body)
	}
	var resp CorrectionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want, _ := corrections.PolarMotion(units.New(0.1, units.Arcsecond), units.New(0.2, units.Arcsecond),
		units.New(45, units.Degree), units.New(0, units.Degree))
	if math.Abs(resp.Correction.Value-want.Value) > 1e-9 || resp.Pole != nil {
		t.Fatalf("got %+v, want %v", resp, want)
	}

	q := url.Values{"lat": {"45 deg"}, "lon": {"0"}, "mjd": {"60000"}}
	code, body = env.do(t, http.MethodGet, "/api/v1/corrections/polar?"+q.Encode(), "", "")
	if code != http.StatusOK {
		t.Fatalf("table pole: %d %s", code, body)
	}
	resp = CorrectionResponse{}
	json.Unmarshal(body, &resp)
	if resp.Provenance != "final" || resp.Pole == nil || resp.Pole.X.Value != 0.1 {
		t.Fatalf("unexpected response %s", body)
	}

	for _, bad := range []string{
		"lon=0&xp=0.1&yp=0.2",
		"lat=45&lon=0&xp=0.1",
		"lat=45&lon=0",
		"lat=45 m&lon=0&xp=0.1&yp=0.2",
		"lat=45&lon=0&xp=0.1&yp=0.2&radius=-1",
		"lat=NaN&lon=0&xp=0.1&yp=0.1",
		"lat=45&lon=Inf&xp=0.1&yp=0.1",
		"lat=45&lon=0&xp=NaN&yp=0.1",
		"lat=45&lon=0&mjd=NaN",
	} {
		u := "/api/v1/corrections/polar?" + strings.ReplaceAll(bad, " ", "%20")
		if code, body := env.do(t, http.MethodGet, u, "", ""); code != http.StatusBadRequest {
			t.Errorf("%s: %d %s", bad, code, body)
		}
	}
}

func TestAtmosphereCorrectionEndpoint(t *testing.T) {
	env := newEnv(t, sampleCSV, false)

	code, body := env.do(t, http.MethodGet, "/api/v1/corrections/atmosphere?height=0&pressure=1023.25", "", "")
	if code != http.StatusOK {
		t.Fatalf("status %d: %s", code, body)
	}
	var resp CorrectionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// 10 hPa above normal at 0.3 uGal/mbar
	if math.Abs(resp.Correction.Value-3) > 1e-9 || resp.Correction.Unit != units.MicroGal {
		t.Fatalf("unexpected correction %v", resp.Correction)
	}
	if resp.NormalPressure == nil || math.Abs(resp.NormalPressure.Value-1013.25) > 1e-9 {
		t.Fatalf("unexpected normal pressure %v", resp.NormalPressure)
	}

	for _, bad := range []string{
		"height=0",
		"height=20000&pressure=1000",
		"height=0&pressure=1000%20m",
		"height=0&pressure=NaN",
		"height=NaN&pressure=1000",
		"height=0&pressure=-Inf",
	} {
		if code, body := env.do(t, http.MethodGet, "/api/v1/corrections/atmosphere?"+bad, "", ""); code != http.StatusBadRequest || len(body) == 0 {
			t.Errorf("%s: expected 400 with a body, got %d %q", bad, code, body)
		}
	}
}

func TestWriteJSONUnencodable(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"x": math.NaN()})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error == "" {
		t.Fatalf("expected an error body, got %q (%v)", rec.Body.String(), err)
	}

	rec = httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]int{"x": 1})
	if rec.Code != http.StatusCreated || strings.TrimSpace(rec.Body.String()) != `{"x":1}` {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestSwaggerDoc(t *testing.T) {
	env := newEnv(t, sampleCSV, false)
	code, body := env.do(t, http.MethodGet, "/swagger/doc.json", "", "")
	if code != http.StatusOK {
		t.Fatalf("doc.json: %d", code)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("doc is not JSON: %v", err)
	}
	paths, _ := doc["paths"].(map[string]interface{})
	if _, ok := paths["/api/v1/eop/pole"]; !ok {
		t.Fatalf("pole path missing from doc")
	}
	if code, body := env.do(t, http.MethodGet, "/swagger/", "", ""); code != http.StatusOK || !strings.Contains(string(body), "swagger-ui") {
		t.Fatalf("swagger ui: %d", code)
	}
}
