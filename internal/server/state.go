package server

import "sync/atomic"

// ActiveSource 当前使用的数据库文件路径。上传成功后整体替换，最后一次上传生效。
type ActiveSource struct {
	path atomic.Value
}

func NewActiveSource(path string) *ActiveSource {
	a := &ActiveSource{}
	a.path.Store(path)
	return a
}

func (a *ActiveSource) Path() string {
	return a.path.Load().(string)
}

func (a *ActiveSource) Set(path string) {
	a.path.Store(path)
}
