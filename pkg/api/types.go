package api

import (
	"context"
	"fmt"

	"github.com/packagewjx/procusage/pkg/core"
)

const (
	RouteUpload    = "/upload"
	RouteProcesses = "/processos"
	RouteHealth    = "/healthz"

	// multipart表单中文件字段的名称
	FormFieldFile = "file"

	QueryStart = "start"
	QueryEnd   = "end"
)

// UploadResponse 上传成功时的响应
type UploadResponse struct {
	Message string `json:"mensagem"`
	Path    string `json:"caminho"`
}

// ErrorResponse 所有失败响应的格式
type ErrorResponse struct {
	Error string `json:"erro"`
}

// StatusError 服务器返回的非2xx响应
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("服务器返回%d：%s", e.StatusCode, e.Message)
}

// Range 查询的时间范围，nil表示不限制
type Range struct {
	Start *int64
	End   *int64
}

type API interface {
	// 上传本地的sqlite文件，成为服务器当前的数据源
	Upload(ctx context.Context, path string) (*UploadResponse, error)

	QueryProcesses(ctx context.Context, r Range) ([]*core.UsageRecord, error)
}
