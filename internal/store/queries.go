package store

// Run queries
const (
	queryInsertRun = `
		INSERT INTO runs (id, kind, tunnel_url, success, error, started_at, finished_at)
		VALUES (?, ?, '', 0, '', ?, '')`

	queryFinishRun = `
		UPDATE runs SET
			tunnel_url = ?,
			success = ?,
			error = ?,
			finished_at = ?
		WHERE id = ?`

	queryGetRun = `
		SELECT id, kind, tunnel_url, success, error, started_at, finished_at
		FROM runs WHERE id = ?`
)

// Suite queries
const (
	queryInsertSuite = `
		INSERT INTO suites (run_id, position, suite_id, commit_sha, state, failure_reason)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetSuitesForRun = `
		SELECT suite_id, commit_sha, state, failure_reason
		FROM suites WHERE run_id = ?
		ORDER BY position ASC`
)
