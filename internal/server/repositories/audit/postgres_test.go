package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/smorozov/vaultcore/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func ptr(s string) *string { return &s }

func TestAppendLog(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+audit_logs\s*\(id,\s*user_id,\s*item_id,\s*action,\s*app_name,\s*device,\s*ip,\s*region\)`).
		WithArgs("l-1", ptr("u-1"), nil, "user_login", nil, ptr("cli"), ptr("10.0.0.1"), nil).
		WillReturnRows(sqlmock.NewRows([]string{"at"}).AddRow(time.Now()))

	log := &models.AuditLog{
		ID: "l-1", UserID: ptr("u-1"), Action: "user_login",
		Device: ptr("cli"), IP: ptr("10.0.0.1"),
	}
	if err := repo.AppendLog(context.Background(), log); err != nil {
		t.Fatalf("AppendLog error: %v", err)
	}
	if log.At.IsZero() {
		t.Fatalf("At not populated")
	}
}

func TestAppendEvent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+events\s*\(id,\s*user_id,\s*message\)`).
		WithArgs("e-1", "u-1", "hello").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	event := &models.Event{ID: "e-1", UserID: "u-1", Message: "hello"}
	if err := repo.AppendEvent(context.Background(), event); err != nil {
		t.Fatalf("AppendEvent error: %v", err)
	}
}

func TestListLogsByUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+audit_logs\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+at\s+DESC\s+LIMIT\s+\$2`).
		WithArgs("u-1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "item_id", "action", "app_name", "device", "ip", "region", "at"}).
			AddRow("l-1", ptr("u-1"), nil, "user_login", nil, nil, nil, nil, time.Now()))

	logs, err := repo.ListLogsByUser(context.Background(), "u-1", 10)
	if err != nil {
		t.Fatalf("ListLogsByUser error: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "user_login" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

func TestDeleteLogsByItems(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+audit_logs\s+WHERE\s+item_id\s+IN\s+\(\$1,\s*\$2\)`).
		WithArgs("i-1", "i-2").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.DeleteLogsByItems(context.Background(), []string{"i-1", "i-2"}); err != nil {
		t.Fatalf("DeleteLogsByItems error: %v", err)
	}
}

func TestDeleteLogsByUserAndItems_NoItems(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+audit_logs\s+WHERE\s+user_id\s*=\s*\$1`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.DeleteLogsByUserAndItems(context.Background(), "u-1", nil); err != nil {
		t.Fatalf("DeleteLogsByUserAndItems error: %v", err)
	}
}

func TestDeleteLogsByUserAndItems_WithItems(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+audit_logs\s+WHERE\s+user_id\s*=\s*\$1\s+OR\s+item_id\s+IN\s+\(\$2,\s*\$3\)`).
		WithArgs("u-1", "i-1", "i-2").
		WillReturnResult(sqlmock.NewResult(0, 5))

	if err := repo.DeleteLogsByUserAndItems(context.Background(), "u-1", []string{"i-1", "i-2"}); err != nil {
		t.Fatalf("DeleteLogsByUserAndItems error: %v", err)
	}
}
