package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// chromem names collection directories by an 8 hex char hash prefix.
var collectionDirPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

const quarantineDir = ".quarantine"

// openVectorDB opens the chromem directory at path. An empty path yields an
// in-memory DB. Collections whose metadata file is missing are moved to a
// quarantine directory and the open is retried once.
func openVectorDB(path string, compress bool, logger *zap.Logger) (*chromem.DB, error) {
	if path == "" {
		return chromem.NewDB(), nil
	}

	db, err := chromem.NewPersistentDB(path, compress)
	if err == nil {
		return db, nil
	}
	if !strings.Contains(err.Error(), "collection metadata file not found") {
		return nil, err
	}

	broken, findErr := findBrokenCollections(path, logger)
	if findErr != nil || len(broken) == 0 {
		return nil, err
	}

	qpath := filepath.Join(path, quarantineDir)
	if mkErr := os.MkdirAll(qpath, 0o755); mkErr != nil {
		return nil, fmt.Errorf("creating quarantine directory: %w", mkErr)
	}
	for _, name := range broken {
		src := filepath.Join(path, name)
		dst := filepath.Join(qpath, name)
		logger.Warn("quarantining vector collection without metadata",
			zap.String("from", src),
			zap.String("to", dst))
		if mvErr := os.Rename(src, dst); mvErr != nil {
			logger.Error("failed to quarantine vector collection", zap.String("dir", name), zap.Error(mvErr))
		}
	}

	db, err = chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("opening vectors after quarantine: %w", err)
	}
	logger.Info("vector collections reopened after quarantine", zap.Int("quarantined", len(broken)))
	return db, nil
}

// findBrokenCollections lists collection directories holding documents but
// no 00000000.gob metadata file.
func findBrokenCollections(path string, logger *zap.Logger) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var broken []string
	for _, entry := range entries {
		if !entry.IsDir() || !collectionDirPattern.MatchString(entry.Name()) {
			continue
		}

		dir := filepath.Join(path, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "00000000.gob")); !os.IsNotExist(err) {
			continue
		}

		files, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn("cannot inspect vector collection", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".gob") {
				broken = append(broken, entry.Name())
				break
			}
		}
	}
	return broken, nil
}
