package sqlite

// schema is applied statement by statement on every open. All statements are
// idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		lineage_id TEXT NOT NULL,
		version_number INTEGER NOT NULL CHECK(version_number >= 1),
		organization_id TEXT NOT NULL,
		title TEXT NOT NULL CHECK(length(title) <= 500),
		scope TEXT NOT NULL DEFAULT '',
		issue_status TEXT NOT NULL DEFAULT 'draft'
			CHECK(issue_status IN ('draft', 'issued', 'superseded')),
		change_note TEXT NOT NULL DEFAULT '',
		issued_by TEXT NOT NULL DEFAULT '',
		issued_at DATETIME,
		superseded_by_id TEXT REFERENCES documents(id),
		superseded_at DATETIME,
		artifact_ref TEXT NOT NULL DEFAULT '',
		approval_status TEXT NOT NULL DEFAULT 'not_required'
			CHECK(approval_status IN ('not_required', 'pending', 'approved', 'rejected')),
		approval_reason TEXT NOT NULL DEFAULT '',
		approval_updated_by TEXT NOT NULL DEFAULT '',
		approval_updated_at DATETIME,
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (lineage_id, version_number),
		CHECK ((issue_status = 'superseded') = (superseded_by_id IS NOT NULL)),
		CHECK ((issue_status = 'draft') = (issued_at IS NULL)),
		CHECK (issue_status <> 'draft' OR artifact_ref = '')
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_org ON documents(organization_id)`,

	// At most one issued and one draft revision per lineage.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_one_issued
		ON documents(lineage_id) WHERE issue_status = 'issued'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_one_draft
		ON documents(lineage_id) WHERE issue_status = 'draft'`,

	`CREATE TRIGGER IF NOT EXISTS trg_documents_content_locked
		BEFORE UPDATE OF title, scope ON documents
		WHEN OLD.issue_status <> 'draft'
			AND (NEW.title IS NOT OLD.title OR NEW.scope IS NOT OLD.scope)
		BEGIN
			SELECT RAISE(ABORT, 'revledger: document content is locked');
		END`,
	`CREATE TRIGGER IF NOT EXISTS trg_documents_status_transition
		BEFORE UPDATE OF issue_status ON documents
		WHEN NOT (NEW.issue_status = OLD.issue_status
			OR (OLD.issue_status = 'draft' AND NEW.issue_status = 'issued')
			OR (OLD.issue_status = 'issued' AND NEW.issue_status = 'superseded'))
		BEGIN
			SELECT RAISE(ABORT, 'revledger: illegal issue_status transition');
		END`,
	`CREATE TRIGGER IF NOT EXISTS trg_documents_no_delete
		BEFORE DELETE ON documents
		BEGIN
			SELECT RAISE(ABORT, 'revledger: documents are never deleted');
		END`,

	`CREATE TABLE IF NOT EXISTS module_instances (
		document_id TEXT NOT NULL REFERENCES documents(id),
		module_key TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT 'null',
		updated_by TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (document_id, module_key)
	)`,
	`CREATE TRIGGER IF NOT EXISTS trg_modules_insert_locked
		BEFORE INSERT ON module_instances
		WHEN (SELECT issue_status FROM documents WHERE id = NEW.document_id) <> 'draft'
		BEGIN
			SELECT RAISE(ABORT, 'revledger: document content is locked');
		END`,
	`CREATE TRIGGER IF NOT EXISTS trg_modules_update_locked
		BEFORE UPDATE ON module_instances
		WHEN (SELECT issue_status FROM documents WHERE id = OLD.document_id) <> 'draft'
		BEGIN
			SELECT RAISE(ABORT, 'revledger: document content is locked');
		END`,
	`CREATE TRIGGER IF NOT EXISTS trg_modules_delete_locked
		BEFORE DELETE ON module_instances
		WHEN (SELECT issue_status FROM documents WHERE id = OLD.document_id) <> 'draft'
		BEGIN
			SELECT RAISE(ABORT, 'revledger: document content is locked');
		END`,

	`CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		origin_action_id TEXT REFERENCES actions(id),
		title TEXT NOT NULL CHECK(length(title) <= 500),
		description TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 2 CHECK(priority >= 0 AND priority <= 4),
		owner_id TEXT NOT NULL DEFAULT '',
		module_key TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'open'
			CHECK(status IN ('open', 'in_progress', 'closed', 'deferred')),
		notes TEXT NOT NULL DEFAULT '',
		history TEXT NOT NULL DEFAULT '',
		closed_at DATETIME,
		closed_by TEXT NOT NULL DEFAULT '',
		reopened_at DATETIME,
		reopened_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK ((status = 'closed') = (closed_at IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_document ON actions(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_origin ON actions(origin_action_id)`,

	`CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL,
		lineage_id TEXT NOT NULL DEFAULT '',
		revision_number INTEGER NOT NULL,
		actor_id TEXT NOT NULL,
		event_type TEXT NOT NULL
			CHECK(event_type IN ('issued', 'revision_created', 'action_closed', 'action_reopened')),
		occurred_at DATETIME NOT NULL,
		details TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_document ON audit_events(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_lineage ON audit_events(lineage_id)`,
	`CREATE TRIGGER IF NOT EXISTS trg_audit_no_update
		BEFORE UPDATE ON audit_events
		BEGIN
			SELECT RAISE(ABORT, 'revledger: audit events are append-only');
		END`,
	`CREATE TRIGGER IF NOT EXISTS trg_audit_no_delete
		BEFORE DELETE ON audit_events
		BEGIN
			SELECT RAISE(ABORT, 'revledger: audit events are append-only');
		END`,

	`CREATE TABLE IF NOT EXISTS organization_settings (
		organization_id TEXT PRIMARY KEY,
		approval_required INTEGER NOT NULL DEFAULT 0,
		updated_by TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	)`,
}
