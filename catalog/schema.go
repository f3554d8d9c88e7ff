package catalog

// Schema creates the catalog tables. Timestamps are Unix milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS templates (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    source      TEXT NOT NULL,
    hash        TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

-- Compiled locators of each template, in Template.Tree order.
CREATE TABLE IF NOT EXISTS locators (
    template_id TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
    seq         INTEGER NOT NULL,
    depth       INTEGER NOT NULL,
    name        TEXT NOT NULL,
    kind        TEXT NOT NULL,
    locator     TEXT NOT NULL DEFAULT '',
    score       INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (template_id, seq)
);
`
