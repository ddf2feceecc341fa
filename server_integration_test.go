package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"formscan/pkg/form"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type cannedReader struct{}

func (cannedReader) Extract(ctx context.Context, path string) (*form.Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return &form.Result{
		Template: "water-meter-service",
		Source:   path,
		Columns:  []string{"Water Conn Size", "Meter Date"},
		Values:   map[string]string{"Water Conn Size": `3/4"`, "Meter Date": "2020-03-15"},
		Dates:    map[string]form.PartialDate{"Meter Date": {Year: 2020, Month: 3, Day: 15, HasYear: true, HasMonth: true, HasDay: true}},
	}, nil
}

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	t.Setenv("UPLOAD_BASE", t.TempDir())
	jwtSecret = []byte("test-secret")
	if err := initDB(); err != nil {
		t.Fatalf("init db: %v", err)
	}
	formReader = cannedReader{}
	r := gin.New()
	setupRoutes(r)
	return r
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)

	// 1. Register user
	regBody, _ := json.Marshal(map[string]string{"username": "user1", "password": "pass123"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 && resp.Code != 409 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 2. Login
	loginBody, _ := json.Marshal(map[string]string{"username": "user1", "password": "pass123"})
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(loginBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	refresh, _ := loginResp["refresh_token"].(string)
	if token == "" || refresh == "" {
		t.Fatalf("missing tokens in login response: %+v", loginResp)
	}

	// 3. Upload a form (multipart)
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile("file", "Image_1.jpg")
	_, _ = w.Write([]byte("not really a jpeg"))
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/forms", buf, token, mw.FormDataContentType())
	if resp.Code != 200 {
		t.Fatalf("upload failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var created map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &created)
	id, _ := created["id"].(string)
	values, _ := created["values"].(map[string]any)
	if id == "" || values["Meter Date"] != "2020-03-15" {
		t.Fatalf("unexpected extraction %+v", created)
	}

	// 4. Get and list
	resp = performRequest(r, http.MethodGet, "/forms/"+id, nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("get form failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/forms", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("list forms failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 5. Export
	resp = performRequest(r, http.MethodGet, "/forms/export.xlsx", nil, token, "")
	if resp.Code != 200 || resp.Body.Len() == 0 {
		t.Fatalf("export failed status=%d", resp.Code)
	}

	// 6. Refresh rotates: the old refresh token stops working
	refBody, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(refBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("refresh failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(refBody), "", "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected rotated refresh token to be rejected got %d", resp.Code)
	}

	// 7. Unauthorized access to protected endpoint should be 401
	unauth := performRequest(r, http.MethodGet, "/forms", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list got %d", unauth.Code)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	r := setupTestServer(t)
	loginBody, _ := json.Marshal(map[string]string{"username": "admin", "password": adminPassword()})
	resp := performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(loginBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("admin login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile("file", "notes.txt")
	_, _ = w.Write([]byte("SOME CONTENT"))
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/forms", buf, token, mw.FormDataContentType())
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for text upload got %d", resp.Code)
	}
	if entries, _ := os.ReadDir(filepath.Clean(uploadBaseDir())); len(entries) != 0 {
		t.Fatalf("rejected upload must not be stored, found %d files", len(entries))
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	if err := initDB(); err != nil {
		t.Fatalf("init db: %v", err)
	}
}

func adminPassword() string {
	if p := os.Getenv("ADMIN_PASSWORD"); p != "" {
		return p
	}
	return "admin123"
}
