package migration

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BaSui01/agentrelay/config"
)

// ParseDialect 接受常见别名
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", s)
}

// URLFor 由数据库配置拼出 golang-migrate 连接串。sqlite 的 Name 是文件路径。
func URLFor(d Dialect, db config.DatabaseConfig) string {
	switch d {
	case DialectPostgres:
		ssl := db.SSLMode
		if ssl == "" {
			ssl = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(db.User, db.Password),
			Host:     fmt.Sprintf("%s:%d", db.Host, db.Port),
			Path:     "/" + db.Name,
			RawQuery: "sslmode=" + ssl,
		}
		return u.String()
	case DialectMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			db.User, db.Password, db.Host, db.Port, db.Name)
	case DialectSQLite:
		return "file:" + db.Name + "?mode=rwc"
	}
	return ""
}

// FromConfig 按 database 配置段打开迁移器
func FromConfig(db config.DatabaseConfig) (*Schema, error) {
	d, err := ParseDialect(db.Driver)
	if err != nil {
		return nil, fmt.Errorf("database.driver: %w", err)
	}
	return Open(Options{Dialect: d, URL: URLFor(d, db)})
}

// FromURL 直接使用连接串
func FromURL(dialect, rawURL string) (*Schema, error) {
	d, err := ParseDialect(dialect)
	if err != nil {
		return nil, err
	}
	return Open(Options{Dialect: d, URL: rawURL})
}
