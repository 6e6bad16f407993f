package source

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// 纯Go实现的sqlite，不需要CGO
	"github.com/glebarez/sqlite"
)

// sqlite文件头部的魔数
const magicHeader = "SQLite format 3\x00"

// 文件名中会被当作URI分隔符的字符
var uriPathReplacer = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

var ErrNotDatabase = fmt.Errorf("不是有效的sqlite数据库文件")

// Row 一行数据，键为查询结果中的列名（包含AS别名）
type Row map[string]interface{}

// RowError 表示单行读取失败。读取器仍可以继续读取下一行。
type RowError struct {
	Index int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("读取第%d行失败：%v", e.Index, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

type RowReader interface {
	// 读取一行数据。读取完毕时error为io.EOF；为*RowError时本行被跳过，可以继续读取；其他错误表示无法继续。
	Read() (Row, error)
	Close() error
}

type Source interface {
	// 数据库中所有表的名称
	Tables() ([]string, error)
	// 表中所有列的名称，按照定义顺序
	Columns(table string) ([]string, error)
	// 从表中查询给定的列表达式，每个表达式原样放入SELECT中
	Select(table string, exprs []string) (RowReader, error)
	Path() string
	Close() error
}

type sourceImpl struct {
	path string
	db   *gorm.DB
}

var _ Source = &sourceImpl{}

// Open 以只读方式打开path处的sqlite文件。文件不存在时返回os.ErrNotExist。
func Open(ctx context.Context, path string, log logrus.FieldLogger) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "无法访问数据库文件%s", path)
	}

	if log == nil {
		log = logrus.StandardLogger()
	}
	sqlLogger := logger.New(
		log.WithField("fromSQL", true),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dsn := fmt.Sprintf("file:%s?mode=ro", uriPathReplacer.Replace(path))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true, Logger: sqlLogger})
	if err != nil {
		return nil, errors.Wrapf(err, "打开数据库%s出错", path)
	}

	return &sourceImpl{
		path: path,
		db:   db.WithContext(ctx),
	}, nil
}

func (s *sourceImpl) Path() string {
	return s.path
}

func (s *sourceImpl) Tables() ([]string, error) {
	tables, err := s.db.Migrator().GetTables()
	if err != nil {
		return nil, errors.Wrap(err, "读取表名出错")
	}
	return tables, nil
}

func (s *sourceImpl) Columns(table string) ([]string, error) {
	rows, err := s.db.Raw(fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdent(table))).Rows()
	if err != nil {
		return nil, errors.Wrapf(err, "读取表%s的列出错", table)
	}
	defer rows.Close()

	// cid, name, type, notnull, dflt_value, pk
	var columns []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     sql.NullString
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, errors.Wrapf(err, "解析表%s的列信息出错", table)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "读取表%s的列出错", table)
	}
	return columns, nil
}

func (s *sourceImpl) Select(table string, exprs []string) (RowReader, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("表%s没有需要查询的列", table)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), QuoteIdent(table))
	rows, err := s.db.Raw(query).Rows()
	if err != nil {
		return nil, errors.Wrapf(err, "查询表%s出错", table)
	}

	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, errors.Wrapf(err, "读取表%s的结果列出错", table)
	}

	return &rowReader{rows: rows, columns: columns}, nil
}

func (s *sourceImpl) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "获取数据库连接出错")
	}
	return sqlDB.Close()
}

type rowReader struct {
	rows    *sql.Rows
	columns []string
	index   int
}

func (r *rowReader) Read() (Row, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, errors.Wrap(err, "遍历结果出错")
		}
		return nil, io.EOF
	}

	idx := r.index
	r.index++

	values := make([]interface{}, len(r.columns))
	dest := make([]interface{}, len(r.columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		return nil, &RowError{Index: idx, Err: err}
	}

	row := make(Row, len(r.columns))
	for i, column := range r.columns {
		row[column] = values[i]
	}
	return row, nil
}

func (r *rowReader) Close() error {
	return r.rows.Close()
}

// QuoteIdent 将标识符用反引号括起来。sqlite会把找不到的双引号标识符当作字符串，反引号不会。
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Validate 检查path处的文件是否为可读取的sqlite数据库
func Validate(ctx context.Context, path string, log logrus.FieldLogger) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "打开文件%s出错", path)
	}
	header := make([]byte, len(magicHeader))
	_, err = io.ReadFull(f, header)
	_ = f.Close()
	if err != nil || string(header) != magicHeader {
		return ErrNotDatabase
	}

	src, err := Open(ctx, path, log)
	if err != nil {
		return errors.Wrap(ErrNotDatabase, err.Error())
	}
	defer src.Close()

	if _, err := src.Tables(); err != nil {
		return errors.Wrap(ErrNotDatabase, err.Error())
	}
	return nil
}
