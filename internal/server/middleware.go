package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const HeaderRequestId = "X-Request-Id"

type loggedResponseData struct {
	status int
	size   int
}

type loggingResponseWriter struct {
	http.ResponseWriter
	responseData *loggedResponseData
}

func (r *loggingResponseWriter) Write(b []byte) (int, error) {
	if r.responseData.status == 0 {
		r.responseData.status = http.StatusOK
	}
	size, err := r.ResponseWriter.Write(b)
	r.responseData.size += size
	return size, err
}

func (r *loggingResponseWriter) WriteHeader(statusCode int) {
	r.responseData.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func getRemoteAddr(r *http.Request) string {
	addr, ok := r.Header["X-Real-Ip"]
	if !ok || len(addr) == 0 {
		return r.RemoteAddr
	}
	return addr[0]
}

type Middleware func(http.Handler) http.Handler

// mergeMiddlewares 将多个中间件合并为一个，第一个中间件在最外层
func mergeMiddlewares(middlewares ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// withLogging 记录每个请求。panic同样会被记录，然后继续向外抛出。
func withLogging(logger logrus.FieldLogger) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			var responseData loggedResponseData
			lrw := &loggingResponseWriter{
				ResponseWriter: rw,
				responseData:   &responseData,
			}

			requestId := r.Header.Get(HeaderRequestId)
			if requestId == "" {
				requestId = uuid.New().String()
			}
			rw.Header().Set(HeaderRequestId, requestId)

			start := time.Now()
			entry := func() *logrus.Entry {
				return logger.WithFields(logrus.Fields{
					"requestId": requestId,
					"remote":    getRemoteAddr(r),
					"method":    r.Method,
					"uri":       r.RequestURI,
					"status":    responseData.status,
					"size":      responseData.size,
					"duration":  time.Since(start).String(),
				})
			}

			defer func() {
				if err := recover(); err != nil {
					entry().Errorf("请求处理出现panic：%v", err)
					panic(err)
				}
			}()

			h.ServeHTTP(lrw, r)
			entry().Info("处理请求")
		})
	}
}

// withPanicGuard 最后一道防线，将panic转换为500响应，避免服务器崩溃
func withPanicGuard(logger logrus.FieldLogger) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Errorf("panic: %v", err)
					writeError(rw, http.StatusInternalServerError, fmt.Sprintf("Erro interno: %v", err))
				}
			}()
			h.ServeHTTP(rw, r)
		})
	}
}

// withCORS 允许浏览器跨域访问，并直接响应预检请求
func withCORS(allowedOrigin string) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			header := rw.Header()
			header.Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				header.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					header.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				rw.WriteHeader(http.StatusNoContent)
				return
			}
			h.ServeHTTP(rw, r)
		})
	}
}
