package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestConnectRequiresURL(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}, nil); err == nil {
		t.Fatal("expected error without URL")
	}
}

func TestApplySchemaFSRunsFilesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"schema/002_b.sql": {Data: []byte("CREATE TABLE b (id TEXT)")},
		"schema/001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT)")},
	}
	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := applySchemaFS(context.Background(), db, fsys, "schema"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplySchemaStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").WillReturnError(errors.New("permission denied"))

	if err := ApplySchema(context.Background(), db); err == nil {
		t.Fatal("expected error")
	}
}
