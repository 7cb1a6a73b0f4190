package db

import (
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/zulandar/buildyard/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLDSN builds a DSN for the configured MySQL server.
func MySQLDSN(cfg config.DatabaseConfig) string {
	mc := mysqldriver.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	return mc.FormatDSN()
}

// SQLiteDSN builds a DSN for a sqlite file. A busy timeout lets concurrent
// writers queue instead of failing with SQLITE_BUSY.
func SQLiteDSN(path string) string {
	return path + "?_busy_timeout=5000"
}

// Connect opens a GORM connection to the configured database.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	var target string
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(MySQLDSN(cfg))
		target = fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
	case "sqlite", "":
		dialector = sqlite.Open(SQLiteDSN(cfg.Path))
		target = cfg.Path
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s: %w", target, err)
	}
	return db, nil
}
