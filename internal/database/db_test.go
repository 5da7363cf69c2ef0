package database

import (
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestDSNRoundTrips(t *testing.T) {
	dsn := Options{User: "box", Pass: "p@ss:word", Host: "db", Port: "3306", Name: "studio"}.DSN()
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN(%q): %v", dsn, err)
	}
	if c.User != "box" || c.Passwd != "p@ss:word" || c.Addr != "db:3306" || c.DBName != "studio" {
		t.Fatalf("config = %+v", c)
	}
	if !c.ParseTime {
		t.Fatalf("parseTime not set")
	}
	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Fatalf("dsn = %q", dsn)
	}
}
