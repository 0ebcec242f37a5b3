package cryptofolio

import "database/sql"

func initDatabase(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS operation_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			operation_type TEXT NOT NULL,
			ticker TEXT,
			provider_id TEXT,
			details TEXT,
			old_amount REAL,
			new_amount REAL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS portfolio_insights (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model TEXT NOT NULL,
			risk_profile TEXT,
			horizon TEXT,
			content TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	return tx.Commit()
}

func exec(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

// logOperation records an audit entry. The log is an observability aid,
// not part of the ledger contract, so failures are logged and swallowed.
func (c *Core) logOperation(op, ticker, providerID string, oldAmount, newAmount *Amount, details string) {
	if c.db == nil {
		return
	}
	entry := OperationLog{
		Operation:  op,
		Ticker:     stringPtr(ticker),
		ProviderID: stringPtr(providerID),
		OldAmount:  oldAmount,
		NewAmount:  newAmount,
	}
	if details != "" {
		entry.Details = stringPtr(details)
	}
	if _, err := c.AddOperationLog(entry); err != nil {
		c.logger.Warn("operation log write failed", "op", op, "provider_id", providerID, "err", err)
	}
}

// AddOperationLog adds a new audit log entry.
func (c *Core) AddOperationLog(entry OperationLog) (int64, error) {
	if c.db == nil {
		return 0, NewError(ErrCodeDatabase, "operation log is disabled")
	}
	result, err := c.db.Exec(`
		INSERT INTO operation_logs (operation_type, ticker, provider_id, details, old_amount, new_amount)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Operation, entry.Ticker, entry.ProviderID, entry.Details, entry.OldAmount, entry.NewAmount)
	if err != nil {
		return 0, WrapError(ErrCodeDatabase, "insert operation log", err)
	}
	return result.LastInsertId()
}

// GetOperationLogs returns recent audit log entries, newest first.
func (c *Core) GetOperationLogs(limit, offset int) ([]OperationLog, error) {
	if c.db == nil {
		return []OperationLog{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := c.db.Query(
		"SELECT id, operation_type, ticker, provider_id, details, old_amount, new_amount, created_at FROM operation_logs ORDER BY id DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query operation logs", err)
	}
	defer rows.Close()

	var logs []OperationLog
	for rows.Next() {
		var entry OperationLog
		var ticker, providerID, details, createdAt sql.NullString
		var oldAmount, newAmount sql.NullFloat64
		if err := rows.Scan(&entry.ID, &entry.Operation, &ticker, &providerID, &details, &oldAmount, &newAmount, &createdAt); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan operation log", err)
		}
		if ticker.Valid {
			entry.Ticker = &ticker.String
		}
		if providerID.Valid {
			entry.ProviderID = &providerID.String
		}
		if details.Valid {
			entry.Details = &details.String
		}
		if oldAmount.Valid {
			a := NewAmount(oldAmount.Float64)
			entry.OldAmount = &a
		}
		if newAmount.Valid {
			a := NewAmount(newAmount.Float64)
			entry.NewAmount = &a
		}
		if createdAt.Valid {
			entry.CreatedAt = &createdAt.String
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
