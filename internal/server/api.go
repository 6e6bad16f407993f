package server

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/packagewjx/procusage/internal/source"
	"github.com/packagewjx/procusage/internal/usage"
	"github.com/packagewjx/procusage/pkg/api"
	"github.com/pkg/errors"
)

// 返回给客户端的消息
const (
	msgNoFile          = "Nenhum arquivo enviado"
	msgNoFilename      = "Nenhum arquivo selecionado"
	msgInvalidDatabase = "Arquivo SQLite inválido"
	msgUploaded        = "Arquivo recebido com sucesso"
	msgNoData          = "Nenhum dado disponível"
	msgTooLarge        = "Arquivo muito grande"
)

var (
	ErrMissingFile      = fmt.Errorf("请求中没有文件")
	ErrEmptyFilename    = fmt.Errorf("文件名为空")
	ErrInvalidExtension = fmt.Errorf("文件扩展名不正确")
	ErrFileTooLarge     = fmt.Errorf("文件超过大小上限")
)

// 解析multipart表单时放在内存中的上限，超过部分写入临时文件
const multipartMemory = 1 << 20

func (s *serverImpl) handleUpload(writer http.ResponseWriter, request *http.Request) {
	request.Body = http.MaxBytesReader(writer, request.Body, s.config.MaxUploadBytes)

	file, filename, err := s.readUploadFile(request)
	switch {
	case errors.Is(err, ErrFileTooLarge):
		writeError(writer, http.StatusRequestEntityTooLarge, msgTooLarge)
		return
	case errors.Is(err, ErrMissingFile):
		writeError(writer, http.StatusBadRequest, msgNoFile)
		return
	case errors.Is(err, ErrEmptyFilename):
		writeError(writer, http.StatusBadRequest, msgNoFilename)
		return
	case errors.Is(err, ErrInvalidExtension):
		writeError(writer, http.StatusBadRequest,
			fmt.Sprintf("Arquivo inválido. Envie um arquivo %s", s.config.Extension))
		return
	case err != nil:
		s.logger.WithError(err).Warn("读取上传文件出错")
		writeError(writer, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()

	staged, err := s.uploads.Stage(filename, file)
	if err != nil {
		s.logger.WithError(err).Errorf("保存上传文件%s出错", filename)
		writeError(writer, http.StatusInternalServerError, fmt.Sprintf("Falha ao salvar arquivo: %v", err))
		return
	}

	if err := source.Validate(request.Context(), staged.TempPath, s.logger); err != nil {
		s.logger.WithError(err).Warnf("上传的文件%s不是有效的数据库", filename)
		if err := staged.Discard(); err != nil {
			s.logger.WithError(err).Warn("删除无效的上传文件出错")
		}
		writeError(writer, http.StatusBadRequest, msgInvalidDatabase)
		return
	}

	if err := staged.Commit(); err != nil {
		s.logger.WithError(err).Errorf("保存上传文件%s出错", filename)
		writeError(writer, http.StatusInternalServerError, fmt.Sprintf("Falha ao salvar arquivo: %v", err))
		return
	}

	s.active.Set(staged.Path)
	s.logger.Infof("数据源更新为%s", staged.Path)
	writeJSON(writer, http.StatusOK, &api.UploadResponse{
		Message: msgUploaded,
		Path:    staged.Path,
	})
}

// readUploadFile 从表单中取出文件并检查文件名
func (s *serverImpl) readUploadFile(request *http.Request) (multipart.File, string, error) {
	if err := request.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) || strings.Contains(err.Error(), "request body too large") {
			return nil, "", ErrFileTooLarge
		}
		return nil, "", errors.Wrap(ErrMissingFile, err.Error())
	}

	file, header, err := request.FormFile(api.FormFieldFile)
	if err == http.ErrMissingFile {
		// 文件名为空的文件部分会被当作普通字段
		if _, ok := request.MultipartForm.Value[api.FormFieldFile]; ok {
			return nil, "", ErrEmptyFilename
		}
		return nil, "", ErrMissingFile
	} else if err != nil {
		return nil, "", errors.Wrap(ErrMissingFile, err.Error())
	}

	if header.Filename == "" {
		_ = file.Close()
		return nil, "", ErrEmptyFilename
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), s.config.Extension) {
		_ = file.Close()
		return nil, "", ErrInvalidExtension
	}

	return file, header.Filename, nil
}

func (s *serverImpl) handleProcesses(writer http.ResponseWriter, request *http.Request) {
	r := parseRange(request)

	records := s.normalizer.Normalize(request.Context(), s.active.Path())
	if len(records) == 0 {
		writeError(writer, http.StatusNotFound, msgNoData)
		return
	}

	filtered := usage.Filter(records, r)
	s.logger.Debugf("规范化得到%d条记录，过滤后剩余%d条", len(records), len(filtered))
	writeJSON(writer, http.StatusOK, filtered)
}

// parseRange 读取start与end参数。参数缺失或不是整数时视为未提供。
func parseRange(request *http.Request) usage.Range {
	query := request.URL.Query()
	return usage.Range{
		Start: parseIntParam(query.Get(api.QueryStart)),
		End:   parseIntParam(query.Get(api.QueryEnd)),
	}
}

func parseIntParam(value string) *int64 {
	if value == "" {
		return nil
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func writeJSON(writer http.ResponseWriter, status int, v interface{}) {
	marshal, err := json.Marshal(v)
	if err != nil {
		// 交给panic guard返回500
		panic(errors.Wrap(err, "序列化响应出错"))
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_, _ = writer.Write(marshal)
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writeJSON(writer, status, &api.ErrorResponse{Error: message})
}

// allowMethods 只允许给定的方法，OPTIONS请求由CORS中间件处理
func allowMethods(h http.HandlerFunc, methods ...string) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		for _, m := range methods {
			if request.Method == m {
				h(writer, request)
				return
			}
		}
		writer.Header().Set("Allow", strings.Join(methods, ", "))
		writeError(writer, http.StatusMethodNotAllowed, fmt.Sprintf("Método %s não permitido", request.Method))
	})
}
