package database

const schema = `
CREATE TABLE IF NOT EXISTS assets (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL DEFAULT '',
    file_name TEXT NOT NULL,
    acquired_on TEXT NOT NULL DEFAULT '',
    storage_locator TEXT NOT NULL,
    checksum TEXT NOT NULL DEFAULT '',
    size_bytes INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending',
    session_id TEXT NOT NULL DEFAULT '',
    failure_reason TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_sessions (
    id TEXT PRIMARY KEY,
    asset_id TEXT NOT NULL REFERENCES assets(id),
    status TEXT NOT NULL DEFAULT 'started',
    progress INTEGER NOT NULL DEFAULT 0,
    step_description TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    worker_version TEXT NOT NULL DEFAULT '',
    method TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL,
    ended_at DATETIME,
    duration_ms INTEGER,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_steps (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES processing_sessions(id),
    step_order INTEGER NOT NULL,
    step_name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    output TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL,
    ended_at DATETIME,
    duration_ms INTEGER
);

CREATE TABLE IF NOT EXISTS spatial_metadata (
    id TEXT PRIMARY KEY,
    asset_id TEXT NOT NULL REFERENCES assets(id),
    session_id TEXT NOT NULL REFERENCES processing_sessions(id),
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    bands_count INTEGER NOT NULL,
    epsg_code TEXT NOT NULL DEFAULT '',
    projection_wkt TEXT NOT NULL DEFAULT '',
    gt_x0 REAL NOT NULL DEFAULT 0,
    gt_y0 REAL NOT NULL DEFAULT 0,
    gt_pixel_width REAL NOT NULL DEFAULT 0,
    gt_pixel_height REAL NOT NULL DEFAULT 0,
    gt_skew_x REAL NOT NULL DEFAULT 0,
    gt_skew_y REAL NOT NULL DEFAULT 0,
    extent_wkt TEXT NOT NULL DEFAULT '',
    resolution_x REAL NOT NULL DEFAULT 0,
    resolution_y REAL NOT NULL DEFAULT 0,
    band_statistics TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL,
    UNIQUE (asset_id, session_id)
);

CREATE TABLE IF NOT EXISTS raw_metadata (
    id TEXT PRIMARY KEY,
    asset_id TEXT NOT NULL REFERENCES assets(id),
    session_id TEXT NOT NULL REFERENCES processing_sessions(id),
    sensor_info TEXT NOT NULL DEFAULT '{}',
    acquisition_info TEXT NOT NULL DEFAULT '{}',
    processing_info TEXT NOT NULL DEFAULT '{}',
    quality_info TEXT NOT NULL DEFAULT '{}',
    format_info TEXT NOT NULL DEFAULT '{}',
    complete_metadata TEXT NOT NULL DEFAULT '{}',
    geotransform TEXT NOT NULL DEFAULT '[]',
    projection_wkt TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (asset_id, session_id)
);

CREATE TABLE IF NOT EXISTS raw_band_data (
    id TEXT PRIMARY KEY,
    asset_id TEXT NOT NULL REFERENCES assets(id),
    session_id TEXT NOT NULL REFERENCES processing_sessions(id),
    band_number INTEGER NOT NULL,
    data_type TEXT NOT NULL DEFAULT '',
    statistics TEXT NOT NULL DEFAULT '{}',
    histogram TEXT NOT NULL DEFAULT '{}',
    pixel_samples TEXT NOT NULL DEFAULT '{}',
    wavelength REAL,
    nodata_value REAL,
    scale_factor REAL,
    scale_offset REAL,
    created_at DATETIME NOT NULL,
    UNIQUE (asset_id, session_id, band_number)
);

CREATE TABLE IF NOT EXISTS analysis_results (
    id TEXT PRIMARY KEY,
    asset_id TEXT NOT NULL REFERENCES assets(id),
    session_id TEXT NOT NULL REFERENCES processing_sessions(id),
    band_detection TEXT NOT NULL DEFAULT '{}',
    vegetation_indices TEXT NOT NULL DEFAULT '{}',
    water_indices TEXT NOT NULL DEFAULT '{}',
    soil_indices TEXT NOT NULL DEFAULT '{}',
    thermal_indices TEXT NOT NULL DEFAULT '{}',
    custom_indices TEXT NOT NULL DEFAULT '{}',
    band_correlations TEXT NOT NULL DEFAULT '{}',
    material_hints TEXT NOT NULL DEFAULT '[]',
    rgb_analysis TEXT NOT NULL DEFAULT '{}',
    atmospheric_analysis TEXT NOT NULL DEFAULT '{}',
    spatial_features TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL,
    UNIQUE (asset_id, session_id)
);

CREATE TABLE IF NOT EXISTS extraction_summaries (
    id TEXT PRIMARY KEY,
    asset_id TEXT NOT NULL REFERENCES assets(id),
    session_id TEXT NOT NULL REFERENCES processing_sessions(id),
    bands_count INTEGER NOT NULL DEFAULT 0,
    indices_count INTEGER NOT NULL DEFAULT 0,
    quality_score REAL NOT NULL DEFAULT 0,
    completeness_pct REAL NOT NULL DEFAULT 0,
    quality_status TEXT NOT NULL DEFAULT '',
    document_size_bytes INTEGER NOT NULL DEFAULT 0,
    metadata_size_bytes INTEGER NOT NULL DEFAULT 0,
    band_data_size_bytes INTEGER NOT NULL DEFAULT 0,
    analysis_size_bytes INTEGER NOT NULL DEFAULT 0,
    original_file_name TEXT NOT NULL DEFAULT '',
    original_size_bytes INTEGER NOT NULL DEFAULT 0,
    original_checksum TEXT NOT NULL DEFAULT '',
    original_locator TEXT NOT NULL DEFAULT '',
    extractor_version TEXT NOT NULL DEFAULT '',
    extracted_at TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    UNIQUE (asset_id, session_id)
);

CREATE TABLE IF NOT EXISTS data_relationships (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES processing_sessions(id),
    source_table TEXT NOT NULL,
    source_id TEXT NOT NULL,
    target_table TEXT NOT NULL,
    target_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (source_table, source_id, target_table, target_id, kind)
);

CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    asset_id TEXT NOT NULL REFERENCES assets(id),
    title TEXT NOT NULL,
    format TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    file_path TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assets_status ON assets(status);
CREATE INDEX IF NOT EXISTS idx_sessions_asset ON processing_sessions(asset_id, started_at);
CREATE INDEX IF NOT EXISTS idx_steps_session ON processing_steps(session_id, step_order);
CREATE INDEX IF NOT EXISTS idx_bands_session ON raw_band_data(session_id);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON data_relationships(source_table, source_id);
CREATE INDEX IF NOT EXISTS idx_reports_asset ON reports(asset_id);
`
