package warehouse

import (
	"testing"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
)

func TestValidateReadOnly_Allowed(t *testing.T) {
	statements := []string{
		"SELECT 1",
		"select project_id from analytics.projects",
		"  \n\tSELECT * FROM t",
		"WITH recent AS (SELECT * FROM events) SELECT count(*) FROM recent",
		"-- leading comment\nSELECT 1",
		"/* block\ncomment */ SELECT 1",
	}
	for _, sqlText := range statements {
		if err := validateReadOnly(sqlText); err != nil {
			t.Errorf("validateReadOnly(%q) = %v, want nil", sqlText, err)
		}
	}
}

func TestValidateReadOnly_RejectsWrites(t *testing.T) {
	tests := []struct {
		sqlText  string
		wantCode errors.ErrorCode
	}{
		{"INSERT INTO foo VALUES (1)", errors.CodeForbiddenSQL},
		{"UPDATE t SET a = 1", errors.CodeForbiddenSQL},
		{"DELETE FROM t", errors.CodeForbiddenSQL},
		{"DROP TABLE t", errors.CodeForbiddenSQL},
		{"TRUNCATE TABLE t", errors.CodeForbiddenSQL},
		{"CALL some_proc()", errors.CodeForbiddenSQL},
		// Write keywords hidden inside CTEs still fail.
		{"WITH x AS (DELETE FROM t RETURNING *) SELECT * FROM x", errors.CodeForbiddenSQL},
		{"WITH x AS (SELECT 1) INSERT INTO t SELECT * FROM x", errors.CodeForbiddenSQL},
		{"SELECT * FROM t; DROP TABLE t", errors.CodeForbiddenSQL},
		{"SELECT 1 UNION ALL SELECT 2; GRANT ALL ON t TO PUBLIC", errors.CodeForbiddenSQL},
		{"", errors.CodeValidation},
		{"SHOW TABLES", errors.CodeValidation},
	}

	for _, tt := range tests {
		err := validateReadOnly(tt.sqlText)
		if err == nil {
			t.Errorf("validateReadOnly(%q) = nil, want error", tt.sqlText)
			continue
		}
		svcErr := errors.GetServiceError(err)
		if svcErr == nil {
			t.Errorf("validateReadOnly(%q) returned non-service error %v", tt.sqlText, err)
			continue
		}
		if svcErr.Code != tt.wantCode {
			t.Errorf("validateReadOnly(%q) code = %s, want %s", tt.sqlText, svcErr.Code, tt.wantCode)
		}
	}
}

func TestValidateReadOnly_KeywordInsideIdentifierAllowed(t *testing.T) {
	// Column and table names containing write keywords as substrings are
	// fine; only whole-word matches are rejected.
	statements := []string{
		"SELECT updated_at FROM t",
		"SELECT * FROM deleted_records",
		"SELECT created_by FROM audit_log",
	}
	for _, sqlText := range statements {
		if err := validateReadOnly(sqlText); err != nil {
			t.Errorf("validateReadOnly(%q) = %v, want nil", sqlText, err)
		}
	}
}
