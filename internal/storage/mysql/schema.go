package mysql

// schema mirrors the SQLite schema for MySQL-protocol servers. Partial unique
// indexes are emulated with stored generated columns that are NULL unless
// the row is in the constrained state; NULLs never collide in a unique key.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		lineage_id VARCHAR(64) NOT NULL,
		version_number INT NOT NULL,
		organization_id VARCHAR(128) NOT NULL,
		title VARCHAR(500) NOT NULL,
		scope TEXT NOT NULL,
		issue_status VARCHAR(16) NOT NULL DEFAULT 'draft',
		change_note TEXT NOT NULL,
		issued_by VARCHAR(128) NOT NULL DEFAULT '',
		issued_at DATETIME(6) NULL,
		superseded_by_id VARCHAR(64) NULL,
		superseded_at DATETIME(6) NULL,
		artifact_ref VARCHAR(512) NOT NULL DEFAULT '',
		approval_status VARCHAR(16) NOT NULL DEFAULT 'not_required',
		approval_reason TEXT NOT NULL,
		approval_updated_by VARCHAR(128) NOT NULL DEFAULT '',
		approval_updated_at DATETIME(6) NULL,
		created_by VARCHAR(128) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		issued_lineage VARCHAR(64) AS (CASE WHEN issue_status = 'issued' THEN lineage_id END) STORED,
		draft_lineage VARCHAR(64) AS (CASE WHEN issue_status = 'draft' THEN lineage_id END) STORED,
		UNIQUE KEY uq_documents_version (lineage_id, version_number),
		UNIQUE KEY uq_documents_one_issued (issued_lineage),
		UNIQUE KEY uq_documents_one_draft (draft_lineage),
		KEY idx_documents_org (organization_id),
		CONSTRAINT chk_documents_version CHECK (version_number >= 1),
		CONSTRAINT chk_documents_status CHECK (issue_status IN ('draft', 'issued', 'superseded')),
		CONSTRAINT chk_documents_approval CHECK (approval_status IN ('not_required', 'pending', 'approved', 'rejected')),
		CONSTRAINT chk_documents_superseded CHECK ((issue_status = 'superseded') = (superseded_by_id IS NOT NULL)),
		CONSTRAINT chk_documents_issued_at CHECK ((issue_status = 'draft') = (issued_at IS NULL)),
		CONSTRAINT fk_documents_superseded_by FOREIGN KEY (superseded_by_id) REFERENCES documents(id)
	)`,

	`DROP TRIGGER IF EXISTS trg_documents_guard`,
	`CREATE TRIGGER trg_documents_guard BEFORE UPDATE ON documents FOR EACH ROW
	BEGIN
		IF OLD.issue_status <> 'draft' AND (NEW.title <> OLD.title OR NEW.scope <> OLD.scope) THEN
			SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'revledger: document content is locked';
		END IF;
		IF NOT (NEW.issue_status = OLD.issue_status
			OR (OLD.issue_status = 'draft' AND NEW.issue_status = 'issued')
			OR (OLD.issue_status = 'issued' AND NEW.issue_status = 'superseded')) THEN
			SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'revledger: illegal issue_status transition';
		END IF;
	END`,
	`DROP TRIGGER IF EXISTS trg_documents_no_delete`,
	`CREATE TRIGGER trg_documents_no_delete BEFORE DELETE ON documents FOR EACH ROW
	BEGIN
		SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'revledger: documents are never deleted';
	END`,

	`CREATE TABLE IF NOT EXISTS module_instances (
		document_id VARCHAR(64) NOT NULL,
		module_key VARCHAR(128) NOT NULL,
		payload LONGTEXT NOT NULL,
		updated_by VARCHAR(128) NOT NULL DEFAULT '',
		updated_at DATETIME(6) NOT NULL,
		PRIMARY KEY (document_id, module_key),
		CONSTRAINT fk_modules_document FOREIGN KEY (document_id) REFERENCES documents(id)
	)`,
	`DROP TRIGGER IF EXISTS trg_modules_insert_locked`,
	`CREATE TRIGGER trg_modules_insert_locked BEFORE INSERT ON module_instances FOR EACH ROW
	BEGIN
		IF (SELECT issue_status FROM documents WHERE id = NEW.document_id) <> 'draft' THEN
			SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'revledger: document content is locked';
		END IF;
	END`,
	`DROP TRIGGER IF EXISTS trg_modules_update_locked`,
	`CREATE TRIGGER trg_modules_update_locked BEFORE UPDATE ON module_instances FOR EACH ROW
	BEGIN
		IF (SELECT issue_status FROM documents WHERE id = OLD.document_id) <> 'draft' THEN
			SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'revledger: document content is locked';
		END IF;
	END`,
	`DROP TRIGGER IF EXISTS trg_modules_delete_locked`,
	`CREATE TRIGGER trg_modules_delete_locked BEFORE DELETE ON module_instances FOR EACH ROW
	BEGIN
		IF (SELECT issue_status FROM documents WHERE id = OLD.document_id) <> 'draft' THEN
			SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'revledger: document content is locked';
		END IF;
	END`,

	`CREATE TABLE IF NOT EXISTS actions (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		document_id VARCHAR(64) NOT NULL,
		origin_action_id VARCHAR(64) NULL,
		title VARCHAR(500) NOT NULL,
		description TEXT NOT NULL,
		priority INT NOT NULL DEFAULT 2,
		owner_id VARCHAR(128) NOT NULL DEFAULT '',
		module_key VARCHAR(128) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL DEFAULT 'open',
		notes TEXT NOT NULL,
		history TEXT NOT NULL,
		closed_at DATETIME(6) NULL,
		closed_by VARCHAR(128) NOT NULL DEFAULT '',
		reopened_at DATETIME(6) NULL,
		reopened_by VARCHAR(128) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		KEY idx_actions_document (document_id),
		KEY idx_actions_origin (origin_action_id),
		CONSTRAINT chk_actions_priority CHECK (priority >= 0 AND priority <= 4),
		CONSTRAINT chk_actions_status CHECK (status IN ('open', 'in_progress', 'closed', 'deferred')),
		CONSTRAINT chk_actions_closed_at CHECK ((status = 'closed') = (closed_at IS NOT NULL)),
		CONSTRAINT fk_actions_document FOREIGN KEY (document_id) REFERENCES documents(id),
		CONSTRAINT fk_actions_origin FOREIGN KEY (origin_action_id) REFERENCES actions(id)
	)`,

	`CREATE TABLE IF NOT EXISTS audit_events (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		document_id VARCHAR(64) NOT NULL,
		lineage_id VARCHAR(64) NOT NULL DEFAULT '',
		revision_number INT NOT NULL,
		actor_id VARCHAR(128) NOT NULL,
		event_type VARCHAR(32) NOT NULL,
		occurred_at DATETIME(6) NOT NULL,
		details LONGTEXT NOT NULL,
		KEY idx_audit_document (document_id),
		KEY idx_audit_lineage (lineage_id),
		CONSTRAINT chk_audit_event_type CHECK (event_type IN ('issued', 'revision_created', 'action_closed', 'action_reopened'))
	)`,
	`DROP TRIGGER IF EXISTS trg_audit_no_update`,
	`CREATE TRIGGER trg_audit_no_update BEFORE UPDATE ON audit_events FOR EACH ROW
	BEGIN
		SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'revledger: audit events are append-only';
	END`,
	`DROP TRIGGER IF EXISTS trg_audit_no_delete`,
	`CREATE TRIGGER trg_audit_no_delete BEFORE DELETE ON audit_events FOR EACH ROW
	BEGIN
		SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'revledger: audit events are append-only';
	END`,

	`CREATE TABLE IF NOT EXISTS organization_settings (
		organization_id VARCHAR(128) NOT NULL PRIMARY KEY,
		approval_required TINYINT(1) NOT NULL DEFAULT 0,
		updated_by VARCHAR(128) NOT NULL DEFAULT '',
		updated_at DATETIME(6) NOT NULL
	)`,
}
