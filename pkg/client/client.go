package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/packagewjx/procusage/pkg/api"
	"github.com/packagewjx/procusage/pkg/core"
	"github.com/pkg/errors"
)

const DefaultApiHostBaseUrl = "http://localhost:5000"

func NewApiClient(baseUrl string, httpClient *http.Client) api.API {
	if baseUrl == "" {
		baseUrl = DefaultApiHostBaseUrl
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &apiClient{
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
		client:  httpClient,
	}
}

var _ api.API = &apiClient{}

type apiClient struct {
	baseUrl string
	client  *http.Client
}

func (a *apiClient) Upload(ctx context.Context, path string) (*api.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "打开文件%s出错", path)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(api.FormFieldFile, filepath.Base(path))
	if err != nil {
		return nil, errors.Wrap(err, "创建表单出错")
	}
	if _, err = io.Copy(part, f); err != nil {
		return nil, errors.Wrapf(err, "读取文件%s出错", path)
	}
	if err = writer.Close(); err != nil {
		return nil, errors.Wrap(err, "创建表单出错")
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseUrl+api.RouteUpload, body)
	if err != nil {
		return nil, errors.Wrap(err, "创建请求出错")
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())

	dest := &api.UploadResponse{}
	if err := a.do(request, dest); err != nil {
		return nil, err
	}
	return dest, nil
}

func (a *apiClient) QueryProcesses(ctx context.Context, r api.Range) ([]*core.UsageRecord, error) {
	query := url.Values{}
	if r.Start != nil {
		query.Set(api.QueryStart, strconv.FormatInt(*r.Start, 10))
	}
	if r.End != nil {
		query.Set(api.QueryEnd, strconv.FormatInt(*r.End, 10))
	}
	u := a.baseUrl + api.RouteProcesses
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "创建请求出错")
	}

	dest := make([]*core.UsageRecord, 0)
	if err := a.do(request, &dest); err != nil {
		return nil, err
	}
	return dest, nil
}

func (a *apiClient) do(request *http.Request, dest interface{}) error {
	response, err := a.client.Do(request)
	if err != nil {
		return errors.Wrap(err, "请求时出现异常")
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return errors.Wrap(err, "读取时出现异常")
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		e := &api.ErrorResponse{}
		if err := json.Unmarshal(body, e); err != nil || e.Error == "" {
			return &api.StatusError{StatusCode: response.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return &api.StatusError{StatusCode: response.StatusCode, Message: e.Error}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return errors.Wrap(err, fmt.Sprintf("解析json异常，json为\n%s", string(body)))
	}
	return nil
}
