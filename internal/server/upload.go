package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// UploadStore 将上传的文件保存到目录中。文件先写入临时文件，校验通过后再改名为最终的文件名，
// 因此校验失败的上传不会覆盖同名的已有文件。
type UploadStore struct {
	dir string
}

func NewUploadStore(dir string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "创建上传目录%s出错", dir)
	}
	return &UploadStore{dir: dir}, nil
}

func (u *UploadStore) Dir() string {
	return u.dir
}

// StagedUpload 已写入临时文件、尚未生效的上传
type StagedUpload struct {
	Filename string // 客户端提供的文件名，只保留最后一段
	Path     string // Commit之后文件所在的位置
	TempPath string
}

// SanitizeFilename 去掉目录部分，避免写到上传目录之外
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == ".." {
		return ""
	}
	return name
}

func (u *UploadStore) Stage(filename string, r io.Reader) (*StagedUpload, error) {
	name := SanitizeFilename(filename)
	if name == "" {
		return nil, fmt.Errorf("文件名%q无效", filename)
	}

	tmp, err := os.CreateTemp(u.dir, ".upload-*")
	if err != nil {
		return nil, errors.Wrap(err, "创建临时文件出错")
	}

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, errors.Wrap(err, "写入临时文件出错")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, errors.Wrap(err, "写入临时文件出错")
	}

	return &StagedUpload{
		Filename: name,
		Path:     filepath.Join(u.dir, name),
		TempPath: tmp.Name(),
	}, nil
}

func (s *StagedUpload) Commit() error {
	if err := os.Rename(s.TempPath, s.Path); err != nil {
		_ = os.Remove(s.TempPath)
		return errors.Wrapf(err, "保存文件%s出错", s.Path)
	}
	return nil
}

func (s *StagedUpload) Discard() error {
	if err := os.Remove(s.TempPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "删除临时文件%s出错", s.TempPath)
	}
	return nil
}
