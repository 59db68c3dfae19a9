package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/hive/internal/config"
	"github.com/zulandar/hive/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		host     string
		port     int
		database string
		want     string
	}{
		{
			name:     "default user",
			host:     "127.0.0.1",
			port:     3306,
			database: "hive",
			want:     "root@tcp(127.0.0.1:3306)/hive?parseTime=true",
		},
		{
			name:     "user and password",
			user:     "hive",
			password: "s3cret",
			host:     "10.0.0.5",
			port:     3307,
			database: "hive_fleet",
			want:     "hive:s3cret@tcp(10.0.0.5:3307)/hive_fleet?parseTime=true",
		},
		{
			name: "no database",
			host: "dolt-server.vpc.internal",
			port: 3306,
			want: "root@tcp(dolt-server.vpc.internal:3306)/?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.user, tt.password, tt.host, tt.port, tt.database)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "postgres"})
	if err == nil || !strings.Contains(err.Error(), "unknown driver") {
		t.Errorf("err = %v", err)
	}
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestInit_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "hive.db")
	gdb, err := Init(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}

	if err := gdb.Create(&models.Agent{ID: "GPT4", Status: "idle"}).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Reopening sees the same data.
	again, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var n int64
	again.Model(&models.Agent{}).Count(&n)
	if n != 1 {
		t.Errorf("agents after reopen = %d, want 1", n)
	}
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	gdb, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := AutoMigrate(gdb); err != nil {
			t.Fatalf("AutoMigrate pass %d: %v", i, err)
		}
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 3 {
		t.Errorf("AllModels() returned %d models, want 3", got)
	}
}

func TestConnect_Error(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server; expect connection error.
	_, err := Open(config.DatabaseConfig{Driver: "mysql", Host: "127.0.0.1", Port: 1, Name: "nonexistent"})
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: connect to")
	}
}

func TestInit_MySQLAdminError(t *testing.T) {
	_, err := Init(config.DatabaseConfig{Driver: "mysql", Host: "127.0.0.1", Port: 1, Name: "x"})
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: admin connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: admin connect to")
	}
}
