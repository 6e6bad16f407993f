package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/packagewjx/procusage/internal/testutils"
	"github.com/packagewjx/procusage/pkg/api"
	"github.com/packagewjx/procusage/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureBytes(t *testing.T) []byte {
	path := testutils.CreateDatabase(t, t.TempDir(), "fixture.sqlite", testutils.ProcessesFixture...)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return content
}

func newUploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", "application/octet-stream")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	request := httptest.NewRequest(http.MethodPost, api.RouteUpload, body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return request
}

func serve(s *serverImpl, request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, request)
	return recorder
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) string {
	e := &api.ErrorResponse{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), e), recorder.Body.String())
	return e.Error
}

func queryRecords(t *testing.T, s *serverImpl, url string) []*core.UsageRecord {
	recorder := serve(s, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	records := make([]*core.UsageRecord, 0)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &records))
	return records
}

func TestUpload_ThenQuery(t *testing.T) {
	s := newTestServer(t, nil)

	recorder := serve(s, newUploadRequest(t, "file", "data.sqlite", fixtureBytes(t)))
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	resp := &api.UploadResponse{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), resp))
	assert.Equal(t, msgUploaded, resp.Message)
	assert.Equal(t, filepath.Join(s.uploads.Dir(), "data.sqlite"), resp.Path)
	assert.Equal(t, resp.Path, s.Active().Path())

	records := queryRecords(t, s, "/processos")
	require.Len(t, records, 4)
	assert.Equal(t, "com.example.mail", *records[0].PackageName)
	assert.Equal(t, "300", *records[2].TxData)

	records = queryRecords(t, s, "/processos?start=15")
	require.Len(t, records, 2)
	assert.Equal(t, "20", records[0].Timestamp.Value)
	assert.Equal(t, "30", records[1].Timestamp.Value)

	records = queryRecords(t, s, "/processos?start=15&end=25")
	require.Len(t, records, 1)
	assert.Equal(t, "com.example.maps", *records[0].PackageName)

	// 过滤后为空时返回空数组
	records = queryRecords(t, s, "/processos?start=1000")
	assert.Empty(t, records)

	// 无法解析的参数视为未提供
	records = queryRecords(t, s, "/processos?start=abc")
	assert.Len(t, records, 4)
}

func TestUpload_WrongExtension(t *testing.T) {
	s := newTestServer(t, nil)
	before := s.Active().Path()

	recorder := serve(s, newUploadRequest(t, "file", "data.txt", fixtureBytes(t)))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Arquivo inválido. Envie um arquivo .sqlite", decodeError(t, recorder))
	assert.Equal(t, before, s.Active().Path())

	// 扩展名不区分大小写
	recorder = serve(s, newUploadRequest(t, "file", "DATA.SQLITE", fixtureBytes(t)))
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestUpload_NotDatabase(t *testing.T) {
	s := newTestServer(t, nil)
	before := s.Active().Path()

	recorder := serve(s, newUploadRequest(t, "file", "fake.sqlite", []byte("PackageName,Pids\ncom.example,1\n")))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, msgInvalidDatabase, decodeError(t, recorder))
	assert.Equal(t, before, s.Active().Path())

	entries, err := os.ReadDir(s.uploads.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_InvalidDoesNotReplaceExisting(t *testing.T) {
	s := newTestServer(t, nil)

	recorder := serve(s, newUploadRequest(t, "file", "data.sqlite", fixtureBytes(t)))
	require.Equal(t, http.StatusOK, recorder.Code)
	active := s.Active().Path()

	recorder = serve(s, newUploadRequest(t, "file", "data.sqlite", []byte("garbage")))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, active, s.Active().Path())
	assert.Len(t, queryRecords(t, s, "/processos"), 4)
}

func TestUpload_MissingFile(t *testing.T) {
	s := newTestServer(t, nil)

	recorder := serve(s, newUploadRequest(t, "other", "data.sqlite", fixtureBytes(t)))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, msgNoFile, decodeError(t, recorder))

	request := httptest.NewRequest(http.MethodPost, api.RouteUpload, strings.NewReader("{}"))
	request.Header.Set("Content-Type", "application/json")
	recorder = serve(s, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, msgNoFile, decodeError(t, recorder))
}

func TestUpload_EmptyFilename(t *testing.T) {
	s := newTestServer(t, nil)

	recorder := serve(s, newUploadRequest(t, "file", "", fixtureBytes(t)))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, msgNoFilename, decodeError(t, recorder))

	// 没有Content-Type的空文件名部分会被解析为普通字段
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("file", "content"))
	require.NoError(t, writer.Close())
	request := httptest.NewRequest(http.MethodPost, api.RouteUpload, body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	recorder = serve(s, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, msgNoFilename, decodeError(t, recorder))
}

func TestUpload_TooLarge(t *testing.T) {
	s := newTestServer(t, func(config *ServerConfig) {
		config.MaxUploadBytes = 1024
	})
	before := s.Active().Path()

	recorder := serve(s, newUploadRequest(t, "file", "big.sqlite", bytes.Repeat([]byte{'x'}, 64*1024)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, recorder.Code)
	assert.Equal(t, msgTooLarge, decodeError(t, recorder))
	assert.Equal(t, before, s.Active().Path())
}

func TestProcesses_NoSource(t *testing.T) {
	s := newTestServer(t, nil)

	recorder := serve(s, httptest.NewRequest(http.MethodGet, "/processos", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, msgNoData, decodeError(t, recorder))
}

func TestProcesses_DefaultSource(t *testing.T) {
	dir := t.TempDir()
	path := testutils.CreateDatabase(t, dir, DefaultSourceName, testutils.ProcessesFixture...)
	s := newTestServer(t, func(config *ServerConfig) {
		config.DefaultSource = path
	})

	assert.Len(t, queryRecords(t, s, "/processos?end=20"), 2)
}

func TestProcesses_NoKnownTables(t *testing.T) {
	dir := t.TempDir()
	path := testutils.CreateDatabase(t, dir, "other.sqlite", `CREATE TABLE settings (Key TEXT)`)
	s := newTestServer(t, func(config *ServerConfig) {
		config.DefaultSource = path
	})

	recorder := serve(s, httptest.NewRequest(http.MethodGet, "/processos", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)

	recorder := serve(s, httptest.NewRequest(http.MethodPost, "/processos", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
	assert.Equal(t, "GET", recorder.Header().Get("Allow"))

	recorder = serve(s, httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestIsolatedInstances(t *testing.T) {
	t.Parallel()
	first := newTestServer(t, nil)
	second := newTestServer(t, nil)

	recorder := serve(first, newUploadRequest(t, "file", "data.sqlite", fixtureBytes(t)))
	require.Equal(t, http.StatusOK, recorder.Code)

	assert.Len(t, queryRecords(t, first, "/processos"), 4)
	recorder = serve(second, httptest.NewRequest(http.MethodGet, "/processos", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
