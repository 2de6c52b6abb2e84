package sqlite

const schema = `
-- Ingest files (immutable once written)
CREATE TABLE IF NOT EXISTS ingest_files (
    file_id TEXT PRIMARY KEY,
    source_side TEXT NOT NULL CHECK(source_side IN ('LEFT','RIGHT')),
    source_system TEXT NOT NULL,
    business_date TEXT NOT NULL,
    file_name TEXT NOT NULL,
    checksum_sha256 TEXT NOT NULL,
    parser_profile TEXT DEFAULT '',
    received_at TEXT NOT NULL,
    status TEXT NOT NULL,
    record_count INTEGER NOT NULL DEFAULT 0,
    created_by TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_ingest_dedup
ON ingest_files(source_side, business_date, checksum_sha256);

-- Normalized transactions (immutable)
CREATE TABLE IF NOT EXISTS txns (
    txn_id TEXT PRIMARY KEY,
    source_side TEXT NOT NULL CHECK(source_side IN ('LEFT','RIGHT')),
    source_system TEXT NOT NULL,
    business_date TEXT NOT NULL,
    rrn TEXT NOT NULL,
    arn TEXT,
    pan_masked TEXT NOT NULL,
    pan_hash TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    txn_time TEXT NOT NULL,
    op_type TEXT NOT NULL,
    merchant_id TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    status_norm TEXT NOT NULL,
    fee_amount REAL NOT NULL DEFAULT 0,
    fee_currency TEXT
);

CREATE INDEX IF NOT EXISTS ix_txn_side_date ON txns(source_side, business_date);
CREATE INDEX IF NOT EXISTS ix_txn_rrn_cur_date ON txns(rrn, currency, business_date);
CREATE INDEX IF NOT EXISTS ix_txn_arn ON txns(arn);

-- Match runs
CREATE TABLE IF NOT EXISTS match_runs (
    run_id TEXT PRIMARY KEY,
    business_date TEXT NOT NULL,
    scope_filter TEXT DEFAULT '',
    ruleset_version TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    status TEXT NOT NULL CHECK(status IN ('RUNNING','FINISHED','FAILED')),
    created_by TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_run_date_started ON match_runs(business_date, started_at);

-- Match results, owned by their run
CREATE TABLE IF NOT EXISTS match_results (
    match_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    left_txn_id TEXT NOT NULL,
    right_txn_id TEXT,
    match_type TEXT NOT NULL,
    score REAL NOT NULL,
    reason_code TEXT NOT NULL,
    explain_json TEXT NOT NULL DEFAULT '{}',
    FOREIGN KEY(run_id) REFERENCES match_runs(run_id)
);

CREATE INDEX IF NOT EXISTS ix_match_run ON match_results(run_id);
CREATE INDEX IF NOT EXISTS ix_match_left ON match_results(left_txn_id);

-- Exception cases, owned by their run
CREATE TABLE IF NOT EXISTS exception_cases (
    case_id TEXT PRIMARY KEY,
    run_id TEXT,
    business_date TEXT NOT NULL,
    category TEXT NOT NULL,
    severity TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'NEW',
    primary_txn_id TEXT NOT NULL,
    owner_user_id TEXT,
    aging_days INTEGER NOT NULL DEFAULT 0,
    resolution_code TEXT,
    created_at TEXT NOT NULL,
    closed_at TEXT,
    FOREIGN KEY(run_id) REFERENCES match_runs(run_id)
);

CREATE INDEX IF NOT EXISTS ix_exception_date_status ON exception_cases(business_date, status);
CREATE INDEX IF NOT EXISTS ix_exception_run ON exception_cases(run_id);

-- Workflow actions (append-only)
CREATE TABLE IF NOT EXISTS exception_actions (
    action_id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    actor_user_id TEXT NOT NULL,
    action_at TEXT NOT NULL,
    action_type TEXT NOT NULL,
    action_payload TEXT NOT NULL DEFAULT '{}',
    FOREIGN KEY(case_id) REFERENCES exception_cases(case_id)
);

CREATE INDEX IF NOT EXISTS ix_action_case ON exception_actions(case_id);

-- Static users and role grants
CREATE TABLE IF NOT EXISTS users (
    login TEXT PRIMARY KEY,
    full_name TEXT NOT NULL,
    status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_roles (
    login TEXT NOT NULL,
    role_name TEXT NOT NULL,
    PRIMARY KEY(login, role_name),
    FOREIGN KEY(login) REFERENCES users(login)
);

-- Versioned matching parameters; at most one active row
CREATE TABLE IF NOT EXISTS rulesets (
    version TEXT PRIMARY KEY,
    is_active INTEGER NOT NULL DEFAULT 0,
    amount_tolerance TEXT NOT NULL,
    date_window_days INTEGER NOT NULL,
    score_threshold REAL NOT NULL,
    created_at TEXT NOT NULL
);

-- Audit trail (append-only)
CREATE TABLE IF NOT EXISTS audit_events (
    audit_id TEXT PRIMARY KEY,
    event_at TEXT NOT NULL,
    actor_login TEXT NOT NULL,
    source_ip TEXT,
    object_type TEXT NOT NULL,
    object_id TEXT,
    action TEXT NOT NULL,
    result TEXT NOT NULL,
    details TEXT
);

CREATE INDEX IF NOT EXISTS ix_audit_at ON audit_events(event_at);
`
