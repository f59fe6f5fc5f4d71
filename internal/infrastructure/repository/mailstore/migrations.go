package mailstore

// migration holds a single schema migration. Statements are executed
// one by one because the MySQL driver rejects multi-statement Exec by
// default.
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS mails (
				message_id VARCHAR(128) NOT NULL,
				arrival_at BIGINT NOT NULL,
				subject    TEXT NOT NULL,
				sender     TEXT NOT NULL,
				content    TEXT NOT NULL,
				handle     VARCHAR(32) NOT NULL,
				delivery   VARCHAR(16) NOT NULL DEFAULT 'pending',
				visible    BOOLEAN NOT NULL DEFAULT TRUE,
				created_at BIGINT NOT NULL,
				PRIMARY KEY (message_id)
			)`,
			`CREATE INDEX idx_mails_arrival ON mails (arrival_at)`,
			`CREATE INDEX idx_mails_delivery ON mails (delivery, visible)`,
		},
	},
}
