package settings_store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"lightbot/internal/app/settings"
)

const (
	slotPrimary = "primary"
	slotFast    = "fast"

	keyModelIndex     = "model_index"
	keyFastModelIndex = "fast_model_index"
	keySystemPrompt   = "system_prompt"
	keySearchProvider = "search_provider"
	keySearchURL      = "search_url"
	keyHotkey         = "hotkey"
)

// SQLiteSource keeps engine settings in a SQLite database, one row per
// model entry and one key/value row per scalar setting.
type SQLiteSource struct {
	dbPath string
}

func NewSQLiteSource(dbPath string) (*SQLiteSource, error) {
	startTime := time.Now()
	defer func() {
		log.Debugf("NewSQLiteSource took %v", time.Since(startTime))
	}()
	if dbPath == "" {
		dbPath = "settings.db"
	}
	src := &SQLiteSource{dbPath: dbPath}
	if err := src.initializeDB(); err != nil {
		return nil, err
	}
	return src, nil
}

func (src *SQLiteSource) open() (*sql.DB, error) {
	return sql.Open("sqlite3", src.dbPath)
}

func (src *SQLiteSource) initializeDB() error {
	db, err := src.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS models (
		slot TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT,
		model TEXT,
		base_url TEXT,
		api_key TEXT,
		PRIMARY KEY (slot, position)
	)`)
	if err != nil {
		log.Errorf("Failed to create models table: %v", err)
		return fmt.Errorf("create models table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at INTEGER
	)`)
	if err != nil {
		log.Errorf("Failed to create settings table: %v", err)
		return fmt.Errorf("create settings table: %w", err)
	}
	return nil
}

func (src *SQLiteSource) Load() (settings.EngineSettings, error) {
	startTime := time.Now()
	defer func() {
		log.Debugf("SQLiteSource.Load took %v", time.Since(startTime))
	}()
	db, err := src.open()
	if err != nil {
		return settings.EngineSettings{}, err
	}
	defer db.Close()

	values := map[string]string{}
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		return settings.EngineSettings{}, fmt.Errorf("query settings: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return settings.EngineSettings{}, err
		}
		values[k] = v
	}
	rows.Close()

	primary, err := loadModels(db, slotPrimary)
	if err != nil {
		return settings.EngineSettings{}, err
	}
	fast, err := loadModels(db, slotFast)
	if err != nil {
		return settings.EngineSettings{}, err
	}
	if len(values) == 0 && len(primary) == 0 && len(fast) == 0 {
		return settings.EngineSettings{}, settings.ErrNoSettings
	}

	s := settings.Defaults()
	s.Models = primary
	s.FastModels = fast
	s.ModelIndex = atoi(values[keyModelIndex])
	s.FastModelIndex = atoi(values[keyFastModelIndex])
	if v, ok := values[keySystemPrompt]; ok {
		s.SystemPrompt = v
	}
	if v, ok := values[keySearchProvider]; ok && v != "" {
		s.SearchProvider = v
	}
	s.SearchURL = values[keySearchURL]
	if v, ok := values[keyHotkey]; ok && v != "" {
		s.Hotkey = v
	}
	return s, nil
}

func loadModels(db *sql.DB, slot string) ([]settings.ModelConfig, error) {
	rows, err := db.Query(
		"SELECT name, model, base_url, api_key FROM models WHERE slot = ? ORDER BY position",
		slot,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s models: %w", slot, err)
	}
	defer rows.Close()

	list := []settings.ModelConfig{}
	for rows.Next() {
		var mc settings.ModelConfig
		if err := rows.Scan(&mc.Name, &mc.Model, &mc.BaseURL, &mc.APIKey); err != nil {
			return nil, err
		}
		list = append(list, mc)
	}
	return list, rows.Err()
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Save replaces everything stored in one transaction.
func (src *SQLiteSource) Save(s settings.EngineSettings) error {
	startTime := time.Now()
	defer func() {
		log.Debugf("SQLiteSource.Save took %v", time.Since(startTime))
	}()
	db, err := src.open()
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM models"); err != nil {
		return fmt.Errorf("clear models: %w", err)
	}
	for slot, list := range map[string][]settings.ModelConfig{slotPrimary: s.Models, slotFast: s.FastModels} {
		for i, mc := range list {
			_, err := tx.Exec(
				"INSERT INTO models (slot, position, name, model, base_url, api_key) VALUES (?, ?, ?, ?, ?, ?)",
				slot, i, mc.Name, mc.Model, mc.BaseURL, mc.APIKey,
			)
			if err != nil {
				return fmt.Errorf("insert %s model %d: %w", slot, i, err)
			}
		}
	}

	now := time.Now().Unix()
	for k, v := range map[string]string{
		keyModelIndex:     strconv.Itoa(s.ModelIndex),
		keyFastModelIndex: strconv.Itoa(s.FastModelIndex),
		keySystemPrompt:   s.SystemPrompt,
		keySearchProvider: s.SearchProvider,
		keySearchURL:      s.SearchURL,
		keyHotkey:         s.Hotkey,
	} {
		_, err := tx.Exec(
			"INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
			k, v, now,
		)
		if err != nil {
			return fmt.Errorf("store setting %s: %w", k, err)
		}
	}
	return tx.Commit()
}
