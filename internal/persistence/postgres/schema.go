package postgres

// schemaDDL creates the destination tables, constraints, and indexes. The
// composite index on (lat, lon) serves the bounding-box query.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    has_labels BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS activities (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    transportation_mode TEXT,
    start_time TIMESTAMPTZ NOT NULL,
    end_time TIMESTAMPTZ NOT NULL,
    UNIQUE (user_id, start_time)
);

CREATE TABLE IF NOT EXISTS trackpoints (
    id BIGSERIAL PRIMARY KEY,
    activity_id UUID NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    altitude INTEGER NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL,
    UNIQUE (activity_id, recorded_at)
);

CREATE INDEX IF NOT EXISTS trackpoints_location_idx ON trackpoints (lat, lon);
`
