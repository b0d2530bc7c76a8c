package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

// LoadRecords reads a JSON array of records from testdata/. If target is
// provided, the file is also unmarshaled into it.
func LoadRecords(filename string, target ...any) ([]map[string]any, error) {
	var records []map[string]any

	_, currentFile, _, _ := runtime.Caller(0)
	dir := filepath.Join(filepath.Dir(currentFile), "testdata")

	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	if len(target) > 0 && target[0] != nil {
		if err := json.Unmarshal(data, target[0]); err != nil {
			return nil, err
		}
	}
	return records, nil
}
